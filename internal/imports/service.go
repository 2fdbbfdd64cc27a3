package imports

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/csvimport"
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/reconcile"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
	"github.com/angelmondragon/packfinderz-catalog/pkg/pubsub"
)

const (
	defaultRunLockTTL = 2 * time.Hour
	editLockTTL       = 30 * time.Second
)

// EventPublisher emits the completion event of a run.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, tenantID, subjectID string, data any) (string, error)
}

// Service drives import sessions: preview, review edits, refresh and run.
type Service interface {
	Preview(ctx context.Context, in PreviewInput) (*Session, error)
	Get(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error)
	SetActions(ctx context.Context, tenantID, importID uuid.UUID, actions map[int]enums.ImportAction) (*Session, error)
	BulkApply(ctx context.Context, tenantID, importID uuid.UUID, action enums.ImportAction, scope enums.BulkScope) (*Session, int, error)
	SetCategories(ctx context.Context, tenantID, importID uuid.UUID, in CategoryChoices) (*Session, error)
	Refresh(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error)
	Run(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error)
}

// PreviewInput is an uploaded file.
type PreviewInput struct {
	TenantID uuid.UUID
	UserID   string
	FileName string
	Data     []byte
}

// CategoryChoices either sets all proposals at once or individual keys.
type CategoryChoices struct {
	SelectAll *bool
	Choices   map[string]bool
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Store        catalog.Store
	Sessions     SessionStore
	Orchestrator *Orchestrator
	Events       EventPublisher
	Logger       *logger.Logger
	RunLockTTL   time.Duration
	Now          func() time.Time
}

type service struct {
	store        catalog.Store
	sessions     SessionStore
	orchestrator *Orchestrator
	events       EventPublisher
	logg         *logger.Logger
	lockTTL      time.Duration
	now          func() time.Time
	runs         sync.WaitGroup
}

// Runner exposes Wait so callers can drain detached runs on shutdown.
type Runner interface {
	Service
	Wait()
}

// NewService validates params.
func NewService(p ServiceParams) (Runner, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if p.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if p.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.RunLockTTL <= 0 {
		p.RunLockTTL = defaultRunLockTTL
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		store:        p.Store,
		sessions:     p.Sessions,
		orchestrator: p.Orchestrator,
		events:       p.Events,
		logg:         p.Logger,
		lockTTL:      p.RunLockTTL,
		now:          p.Now,
	}, nil
}

func (s *service) Preview(ctx context.Context, in PreviewInput) (*Session, error) {
	if in.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant is required")
	}
	format, err := enums.FileFormatFromName(in.FileName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	rows, err := csvimport.Decode(format, in.Data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file could not be read")
	}
	products := drafts.Group(rows)

	tree, existing, err := s.snapshot(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &Session{
		ID:         uuid.New(),
		TenantID:   in.TenantID,
		UserID:     in.UserID,
		FileName:   in.FileName,
		Format:     format,
		Status:     enums.ImportStatusDraft,
		Plan:       reconcile.Build(products, tree, catalog.Index(existing), nil),
		Categories: tree.Nodes(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithImportID(ctx, session.ID.String()), map[string]any{
		"rows":     len(rows),
		"products": len(products),
	})
	s.logg.Info(logCtx, "import preview created")
	return session, nil
}

func (s *service) snapshot(ctx context.Context, tenantID uuid.UUID) (*categories.Tree, []catalog.Product, error) {
	stored, err := s.store.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load categories")
	}
	existing, err := s.store.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing products")
	}
	return catalog.Tree(stored), existing, nil
}

func (s *service) Get(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error) {
	return s.sessions.Load(ctx, tenantID, importID)
}

// edit holds the run lock across load, change and save so a run starting
// concurrently can never overwrite the edit.
func (s *service) edit(ctx context.Context, tenantID, importID uuid.UUID, fn func(*Session) error) (*Session, error) {
	token := uuid.NewString()
	locked, err := s.sessions.Lock(ctx, importID, token, editLockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire import lock")
	}
	if !locked {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "import is locked by a run or another edit")
	}
	defer s.unlock(ctx, importID, token)

	session, err := s.sessions.Load(ctx, tenantID, importID)
	if err != nil {
		return nil, err
	}
	if !session.Editable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("import is %s and can no longer be edited", session.Status))
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.Status = enums.ImportStatusDraft
	session.Report = nil
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *service) SetActions(ctx context.Context, tenantID, importID uuid.UUID, actions map[int]enums.ImportAction) (*Session, error) {
	return s.edit(ctx, tenantID, importID, func(session *Session) error {
		for ref, action := range actions {
			if err := session.Plan.SetAction(ref, action); err != nil {
				return err
			}
		}
		session.Plan.Repropose(session.Tree())
		return nil
	})
}

func (s *service) BulkApply(ctx context.Context, tenantID, importID uuid.UUID, action enums.ImportAction, scope enums.BulkScope) (*Session, int, error) {
	var changed int
	session, err := s.edit(ctx, tenantID, importID, func(session *Session) error {
		n, err := session.Plan.BulkApply(action, scope)
		if err != nil {
			return err
		}
		changed = n
		session.Plan.Repropose(session.Tree())
		return nil
	})
	return session, changed, err
}

func (s *service) SetCategories(ctx context.Context, tenantID, importID uuid.UUID, in CategoryChoices) (*Session, error) {
	return s.edit(ctx, tenantID, importID, func(session *Session) error {
		if in.SelectAll != nil {
			session.Plan.SelectAllCategories(*in.SelectAll)
		}
		for key, create := range in.Choices {
			if err := session.Plan.SetCategoryChoice(key, create); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) Refresh(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error) {
	return s.edit(ctx, tenantID, importID, func(session *Session) error {
		return s.refresh(ctx, session)
	})
}

// refresh reloads the store snapshot and recomputes resolution, proposals
// and duplicate matches, keeping operator choices.
func (s *service) refresh(ctx context.Context, session *Session) error {
	tree, existing, err := s.snapshot(ctx, session.TenantID)
	if err != nil {
		return err
	}
	session.Plan = reconcile.Build(session.Plan.Products, tree, catalog.Index(existing), session.Plan.Choices)
	session.Categories = tree.Nodes()
	return nil
}

// Run refreshes the snapshot, validates the plan and starts the write phases
// on a context detached from the caller. Validation failures are returned as a
// session in aborted_validation, not as an error.
func (s *service) Run(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error) {
	session, err := s.sessions.Load(ctx, tenantID, importID)
	if err != nil {
		return nil, err
	}
	if !session.Editable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("import is already %s", session.Status))
	}

	token := uuid.NewString()
	locked, err := s.sessions.Lock(ctx, session.ID, token, s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire import lock")
	}
	if !locked {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "import is already running")
	}

	started := false
	defer func() {
		if !started {
			s.unlock(ctx, session.ID, token)
		}
	}()

	if err := s.refresh(ctx, session); err != nil {
		return nil, err
	}
	if report := validate(session.Plan, session.Tree()); report != nil {
		session.Status = report.Status
		session.Report = report
		session.UpdatedAt = s.now().UTC()
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, err
		}
		s.metricsRun(report)
		return session, nil
	}

	session.Status = enums.ImportStatusRunning
	session.Report = nil
	session.Progress = &Progress{Phase: enums.ImportPhaseValidate}
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	started = true
	runCtx := s.logg.WithImportID(s.logg.WithTenantID(context.WithoutCancel(ctx), tenantID.String()), session.ID.String())
	snapshot := *session
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.unlock(runCtx, snapshot.ID, token)
		s.execute(runCtx, &snapshot)
	}()
	return session, nil
}

func validate(plan *reconcile.Plan, tree *categories.Tree) *Report {
	if len(plan.SelectedProducts()) == 0 {
		return &Report{
			Status:          enums.ImportStatusAbortedValidation,
			Message:         msgNothingSelected,
			ProductsSkipped: len(plan.Products),
		}
	}
	if unresolved := plan.Unresolved(tree); len(unresolved) > 0 {
		return &Report{
			Status:          enums.ImportStatusAbortedValidation,
			Message:         fmt.Sprintf("%d products reference categories that are neither existing nor selected for creation", len(unresolved)),
			Unresolved:      labels(unresolved),
			ProductsSkipped: len(plan.Products) - len(plan.SelectedProducts()),
		}
	}
	return nil
}

func (s *service) metricsRun(report *Report) {
	s.orchestrator.metrics.IncRun(string(report.Status))
}

func (s *service) execute(ctx context.Context, session *Session) {
	progress := startProgressWriter(func(p Progress) {
		session.Progress = &p
		session.UpdatedAt = s.now().UTC()
		if err := s.sessions.Save(ctx, session); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "saving import progress failed")
		}
	})

	s.logg.Info(ctx, "import run started")
	report, err := s.orchestrator.Run(ctx, RunInput{
		TenantID:   session.TenantID,
		Plan:       session.Plan,
		Tree:       session.Tree(),
		OnProgress: progress.report,
	})
	progress.stop()
	if report == nil {
		report = &Report{Status: enums.ImportStatusAbortedError}
		if err != nil {
			report.Message = err.Error()
		}
	}

	session.Status = report.Status
	session.Report = report
	session.UpdatedAt = s.now().UTC()
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		s.logg.Error(ctx, "saving import report failed", saveErr)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"status":    string(report.Status),
		"succeeded": report.Succeeded,
		"failures":  report.FailureCount,
		"retries":   report.Retries,
	})
	if err != nil {
		s.logg.Error(logCtx, "import run finished with error", err)
	} else {
		s.logg.Info(logCtx, "import run finished")
	}
	s.publish(ctx, session)
}

func (s *service) publish(ctx context.Context, session *Session) {
	if s.events == nil {
		return
	}
	payload := map[string]any{
		"importId": session.ID.String(),
		"fileName": session.FileName,
		"report":   session.Report,
	}
	if _, err := s.events.Publish(ctx, pubsub.EventImportCompleted, session.TenantID.String(), session.ID.String(), payload); err != nil {
		s.logg.Error(ctx, "publishing import event failed", err)
	}
}

func (s *service) unlock(ctx context.Context, importID uuid.UUID, token string) {
	if err := s.sessions.Unlock(ctx, importID, token); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "releasing import lock failed")
	}
}

// Wait blocks until detached runs have finished.
func (s *service) Wait() {
	s.runs.Wait()
}

// ParseActions converts raw action values keyed by product ref.
func ParseActions(raw map[int]string) (map[int]enums.ImportAction, error) {
	out := make(map[int]enums.ImportAction, len(raw))
	for ref, value := range raw {
		action, err := enums.ParseImportAction(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, strings.TrimSpace(err.Error()))
		}
		out[ref] = action
	}
	return out, nil
}

// progressWriter persists run progress from its own goroutine so engine
// workers never wait on the session store. Reports that arrive while a write
// is in flight collapse into the next write.
type progressWriter struct {
	mu      sync.Mutex
	latest  Progress
	pending bool

	wake  chan struct{}
	done  chan struct{}
	write func(Progress)
}

func startProgressWriter(write func(Progress)) *progressWriter {
	w := &progressWriter{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		write: write,
	}
	go w.loop()
	return w
}

func (w *progressWriter) report(p Progress) {
	w.mu.Lock()
	w.latest = p
	w.pending = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *progressWriter) loop() {
	defer close(w.done)
	for range w.wake {
		w.flush()
	}
	w.flush()
}

func (w *progressWriter) flush() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	p := w.latest
	w.pending = false
	w.mu.Unlock()
	w.write(p)
}

// stop writes any pending report and waits for the writer. report must not be
// called afterwards.
func (w *progressWriter) stop() {
	close(w.wake)
	<-w.done
}
