package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
)

const (
	headerProject = "X-Project-ID"
	headerAPIKey  = "X-API-Key"

	maxErrorBody = 64 << 10
)

// Filter is an equality predicate on a document field. A nil Value matches null.
type Filter struct {
	Field string
	Value *string
}

// Eq builds an equality filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Value: &value}
}

// IsNull builds a filter matching documents whose field is null or absent.
func IsNull(field string) Filter {
	return Filter{Field: field}
}

func (f Filter) query() string {
	if f.Value == nil {
		return f.Field + ":null"
	}
	return f.Field + ":eq:" + *f.Value
}

// Document is a raw stored document. System fields are prefixed with "$".
type Document struct {
	ID        string          `json:"$id"`
	CreatedAt time.Time       `json:"$createdAt"`
	UpdatedAt time.Time       `json:"$updatedAt"`
	Data      json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full payload in Data alongside the system fields.
func (d *Document) UnmarshalJSON(b []byte) error {
	type system struct {
		ID        string    `json:"$id"`
		CreatedAt time.Time `json:"$createdAt"`
		UpdatedAt time.Time `json:"$updatedAt"`
	}
	var s system
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	d.ID, d.CreatedAt, d.UpdatedAt = s.ID, s.CreatedAt, s.UpdatedAt
	d.Data = append(d.Data[:0], b...)
	return nil
}

type listResponse struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

type createRequest struct {
	DocumentID string `json:"documentId"`
	Data       any    `json:"data"`
}

type updateRequest struct {
	Data any `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// Client talks to the document database REST API.
type Client struct {
	http     *http.Client
	endpoint string
	project  string
	apiKey   string
	database string
	pageSize int
	logg     *logger.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg config.DocStoreConfig, httpClient *http.Client, logg *logger.Logger) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("docstore endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid docstore endpoint: %w", err)
	}
	if cfg.DatabaseID == "" {
		return nil, fmt.Errorf("docstore database id is required")
	}
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		http:     httpClient,
		endpoint: endpoint,
		project:  cfg.ProjectID,
		apiKey:   cfg.APIKey,
		database: cfg.DatabaseID,
		pageSize: pageSize,
		logg:     logg,
	}, nil
}

func (c *Client) documentsURL(collection string) string {
	return fmt.Sprintf("%s/databases/%s/collections/%s/documents",
		c.endpoint, url.PathEscape(c.database), url.PathEscape(collection))
}

// List pages through every document in collection matching filters, ordered by orderBy.
func (c *Client) List(ctx context.Context, collection string, filters []Filter, orderBy string) ([]Document, error) {
	var (
		out    []Document
		cursor string
	)
	for {
		q := url.Values{}
		for _, f := range filters {
			q.Add("filter", f.query())
		}
		if orderBy != "" {
			q.Set("orderBy", orderBy)
		}
		q.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("cursorAfter", cursor)
		}

		var page listResponse
		if err := c.do(ctx, http.MethodGet, c.documentsURL(collection)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Documents...)
		if len(page.Documents) < c.pageSize {
			return out, nil
		}
		cursor = page.Documents[len(page.Documents)-1].ID
	}
}

// Create stores data under id and returns the stored document.
func (c *Client) Create(ctx context.Context, collection, id string, data any) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodPost, c.documentsURL(collection), createRequest{DocumentID: id, Data: data}, &doc)
	return doc, err
}

// Update patches the document's fields.
func (c *Client) Update(ctx context.Context, collection, id string, data any) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodPatch, c.documentsURL(collection)+"/"+url.PathEscape(id), updateRequest{Data: data}, &doc)
	return doc, err
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.documentsURL(collection)+"/"+url.PathEscape(id), nil, nil)
}

// Ping lists a single document of collection to verify credentials.
func (c *Client) Ping(ctx context.Context, collection string) error {
	q := url.Values{"limit": []string{"1"}}
	return c.do(ctx, http.MethodGet, c.documentsURL(collection)+"?"+q.Encode(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode docstore request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build docstore request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.project != "" {
		req.Header.Set(headerProject, c.project)
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("docstore %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode docstore response: %w", err)
	}
	return nil
}

// decodeError maps a failed response into a typed error carrying the remote status.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorResponse
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(raw))
	}
	return pkgerrors.FromStatus(resp.StatusCode, payload.Type, payload.Message)
}
