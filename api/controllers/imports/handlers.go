package imports

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/api/middleware"
	"github.com/angelmondragon/packfinderz-catalog/api/responses"
	"github.com/angelmondragon/packfinderz-catalog/api/validators"
	"github.com/angelmondragon/packfinderz-catalog/internal/csvimport"
	importsvc "github.com/angelmondragon/packfinderz-catalog/internal/imports"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
)

const (
	uploadField   = "file"
	maxNameLength = 200
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Template serves the import template as CSV, XLSX or JSON.
func Template(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := validators.ParseQueryEnum(r, "format", string(enums.FileFormatCSV),
			string(enums.FileFormatCSV), string(enums.FileFormatXLSX), string(enums.FileFormatJSON))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tmpl := csvimport.ProductTemplate()
		var buf bytes.Buffer
		var contentType string
		switch enums.FileFormat(format) {
		case enums.FileFormatJSON:
			responses.WriteSuccess(w, tmpl)
			return
		case enums.FileFormatXLSX:
			err = csvimport.WriteXLSXTemplate(&buf, tmpl)
			contentType = xlsxMediaType
		default:
			err = csvimport.WriteCSVTemplate(&buf, tmpl)
			contentType = "text/csv; charset=utf-8"
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render template"))
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_import_template.%s"`, tmpl.Entity, format))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "writing template failed")
		}
	}
}

// Upload parses a multipart file into a new import session.
func Upload(svc importsvc.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file exceeds upload limit or is not multipart"))
			return
		}
		file, header, err := r.FormFile(uploadField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file is required").WithDetails(map[string]any{"field": uploadField}))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file could not be read"))
			return
		}

		session, err := svc.Preview(r.Context(), importsvc.PreviewInput{
			TenantID: tenantID,
			UserID:   middleware.UserIDFromContext(r.Context()),
			FileName: validators.SanitizeFileName(header.Filename, maxNameLength),
			Data:     data,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newImportResponse(session))
	}
}

// Get returns the session view.
func Get(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Get(r.Context(), tenantID, importID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newImportResponse(session))
	}
}

type setActionsRequest struct {
	Actions []productActionRequest `json:"actions" validate:"required,min=1,dive"`
}

type productActionRequest struct {
	Ref    *int   `json:"ref" validate:"required,min=0"`
	Action string `json:"action" validate:"required,oneof=create update skip"`
}

// SetActions overrides per-product actions.
func SetActions(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setActionsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		raw := make(map[int]string, len(payload.Actions))
		for _, a := range payload.Actions {
			raw[*a.Ref] = a.Action
		}
		actions, err := importsvc.ParseActions(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SetActions(r.Context(), tenantID, importID, actions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newImportResponse(session))
	}
}

type bulkApplyRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=create update skip"`
	Scope  string `json:"scope" validate:"omitempty,oneof=duplicates all"`
}

type bulkApplyResponse struct {
	Changed int            `json:"changed"`
	Import  importResponse `json:"import"`
}

// BulkApply sets one action on every duplicate, or on every product.
func BulkApply(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkApplyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scope, err := enums.ParseBulkScope(payload.Scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scope"))
			return
		}

		session, changed, err := svc.BulkApply(r.Context(), tenantID, importID, enums.ImportAction(strings.ToLower(payload.Action)), scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bulkApplyResponse{Changed: changed, Import: newImportResponse(session)})
	}
}

type setCategoriesRequest struct {
	SelectAll *bool           `json:"selectAll,omitempty"`
	Choices   map[string]bool `json:"choices,omitempty"`
}

// SetCategories toggles category creation choices.
func SetCategories(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload setCategoriesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.SelectAll == nil && len(payload.Choices) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "selectAll or choices is required"))
			return
		}

		session, err := svc.SetCategories(r.Context(), tenantID, importID, importsvc.CategoryChoices{
			SelectAll: payload.SelectAll,
			Choices:   payload.Choices,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newImportResponse(session))
	}
}

// Refresh reloads the store snapshot.
func Refresh(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Refresh(r.Context(), tenantID, importID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newImportResponse(session))
	}
}

// Run starts the import. A started run answers 202; a validation abort
// answers 422 with the session so the operator sees the offending products.
func Run(svc importsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, importID, err := sessionTarget(svc, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.Run(r.Context(), tenantID, importID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusAccepted
		if session.Status == enums.ImportStatusAbortedValidation {
			status = http.StatusUnprocessableEntity
		}
		responses.WriteSuccessStatus(w, status, newImportResponse(session))
	}
}

func tenantFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.TenantIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id")
	}
	return id, nil
}

func sessionTarget(svc importsvc.Service, r *http.Request) (uuid.UUID, uuid.UUID, error) {
	if svc == nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable")
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	importID, err := validators.ParseUUIDParam(r, "importId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenantID, importID, nil
}
