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
	"github.com/angelmondragon/packfinderz-catalog/internal/drafts"
	"github.com/angelmondragon/packfinderz-catalog/internal/reconcile"
	"github.com/angelmondragon/packfinderz-catalog/pkg/batch"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
	"github.com/angelmondragon/packfinderz-catalog/pkg/metrics"
)

const (
	msgNothingSelected  = "No products selected for import"
	defaultFailureLimit = 5
)

// Orchestrator replays a reconciliation plan against the store:
// validate, create categories, re-resolve, write products, replace variants.
type Orchestrator struct {
	store        catalog.Store
	engine       batch.Options
	metrics      *metrics.ImportMetrics
	logg         *logger.Logger
	failureLimit int
}

// OrchestratorParams wires an Orchestrator.
type OrchestratorParams struct {
	Store        catalog.Store
	Engine       batch.Options
	Metrics      *metrics.ImportMetrics
	Logger       *logger.Logger
	FailureLimit int
}

// NewOrchestrator validates params.
func NewOrchestrator(p OrchestratorParams) (*Orchestrator, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.FailureLimit <= 0 {
		p.FailureLimit = defaultFailureLimit
	}
	return &Orchestrator{
		store:        p.Store,
		engine:       p.Engine,
		metrics:      p.Metrics,
		logg:         p.Logger,
		failureLimit: p.FailureLimit,
	}, nil
}

// EngineOptions maps import config onto engine options.
func EngineOptions(cfg config.ImportConfig) batch.Options {
	return batch.Options{
		BatchSize:         cfg.BatchSize,
		BatchDelay:        cfg.BatchDelay,
		Concurrency:       cfg.Concurrency,
		ItemDelay:         cfg.ItemDelay,
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    cfg.InitialBackoff,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxBackoff:        cfg.MaxBackoff,
	}
}

// RunInput is everything a run reads. Tree is the snapshot the plan was built against.
type RunInput struct {
	TenantID   uuid.UUID
	Plan       *reconcile.Plan
	Tree       *categories.Tree
	OnProgress func(Progress)
}

type runState struct {
	in     RunInput
	report *Report

	mu      sync.Mutex
	keyToID map[string]uuid.UUID
	created []categories.Node
	tree    *categories.Tree
}

// Run executes the plan. Validation problems end in aborted_validation with a
// nil error; unexpected failures end in aborted_error and are returned.
// Per-item write failures never abort the run and are listed in the report.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*Report, error) {
	if in.Plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if in.Tree == nil {
		in.Tree = categories.NewTree(nil)
	}
	st := &runState{
		in:      in,
		report:  &Report{},
		keyToID: make(map[string]uuid.UUID),
		tree:    in.Tree,
	}

	report, err := o.run(ctx, st)
	o.metrics.IncRun(string(report.Status))
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, st *runState) (*Report, error) {
	report := st.report
	plan := st.in.Plan

	selected := plan.SelectedProducts()
	report.ProductsSkipped = len(plan.Products) - len(selected)
	if len(selected) == 0 {
		report.Status = enums.ImportStatusAbortedValidation
		report.Message = msgNothingSelected
		return report, nil
	}
	if unresolved := plan.Unresolved(st.in.Tree); len(unresolved) > 0 {
		report.Status = enums.ImportStatusAbortedValidation
		report.Message = "Some products reference categories that are neither existing nor selected for creation"
		report.Unresolved = labels(unresolved)
		return report, nil
	}

	if err := o.createCategories(ctx, st, plan.SelectedProposals()); err != nil {
		return o.abort(ctx, report, err)
	}

	resolved, unresolved := o.reresolve(st, selected)
	if len(unresolved) > 0 {
		report.Status = enums.ImportStatusAbortedValidation
		report.Message = "Categories could not be resolved after creation; no products were written"
		report.Unresolved = labels(unresolved)
		return report, nil
	}

	written, err := o.writeProducts(ctx, st, resolved)
	if err != nil {
		return o.abort(ctx, report, err)
	}
	if err := o.writeVariants(ctx, st, written); err != nil {
		return o.abort(ctx, report, err)
	}

	report.Status = enums.ImportStatusCompleted
	for _, w := range written {
		if !w.failed {
			report.Succeeded++
		}
	}
	if report.FailureCount == 0 {
		report.Message = fmt.Sprintf("Imported %d products", report.Succeeded)
	} else {
		report.Message = fmt.Sprintf("Imported %d products with %d failures", report.Succeeded, report.FailureCount)
	}
	return report, nil
}

func (o *Orchestrator) abort(ctx context.Context, report *Report, err error) (*Report, error) {
	report.Status = enums.ImportStatusAbortedError
	report.Message = err.Error()
	o.logg.Error(ctx, "import run aborted", err)
	return report, err
}

func labels(products []drafts.ProductDraft) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = fmt.Sprintf("%s (%s)", p.Label(), p.RawCategory)
	}
	return out
}

func (o *Orchestrator) phaseOptions(phase enums.ImportPhase, st *runState, onProgress func(completed, total int)) batch.Options {
	opts := o.engine
	opts.Phase = string(phase)
	opts.Logger = o.logg
	opts.OnProgress = func(completed, total int) {
		if onProgress != nil {
			onProgress(completed, total)
		}
		if st.in.OnProgress != nil {
			st.in.OnProgress(Progress{Phase: phase, Completed: completed, Total: total})
		}
	}
	return opts
}

func (o *Orchestrator) observe(phase enums.ImportPhase, started time.Time, succeeded, failed, retries int) {
	o.metrics.ObservePhase(string(phase), time.Since(started))
	o.metrics.AddItems(string(phase), metrics.OutcomeSucceeded, succeeded)
	o.metrics.AddItems(string(phase), metrics.OutcomeFailed, failed)
	for i := 0; i < retries; i++ {
		o.metrics.IncRetry(string(phase))
	}
}

// createCategories creates selected proposals one at a time in depth order.
// Before each create the store is asked for the parent's current children so
// a category created elsewhere in the meantime is reused.
func (o *Orchestrator) createCategories(ctx context.Context, st *runState, proposals []categories.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	started := time.Now()
	phaseCtx := o.logg.WithPhase(ctx, string(enums.ImportPhaseCategories))

	opts := o.phaseOptions(enums.ImportPhaseCategories, st, nil)
	opts.Concurrency = 1

	tenantID := st.in.TenantID
	res, err := batch.Run(phaseCtx, proposals, func(ctx context.Context, _ int, prop categories.Proposal) error {
		parentID, err := st.parentFor(prop)
		if err != nil {
			return err
		}

		siblings, err := o.store.FindCategories(ctx, tenantID, parentID)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if strings.EqualFold(strings.TrimSpace(sib.Name), prop.Name) || (sib.Slug != "" && sib.Slug == prop.Slug) {
				st.recordCategory(prop.Key, sib.Node(), false)
				return nil
			}
		}

		created, err := o.store.CreateCategory(ctx, catalog.Category{
			TenantID:  tenantID,
			Name:      prop.Name,
			Slug:      prop.Slug,
			ParentID:  parentID,
			SortOrder: len(siblings),
		})
		if err != nil {
			return err
		}
		st.recordCategory(prop.Key, created.Node(), true)
		return nil
	}, opts)

	for _, f := range res.Failures {
		st.report.addFailure(o.failureLimit, FailureDetail{
			Phase:    enums.ImportPhaseCategories,
			Label:    f.Item.Label,
			Status:   f.Status,
			Message:  f.Message,
			Type:     f.Type,
			Attempts: f.Attempts,
		})
	}
	st.report.Retries += res.Retries
	o.observe(enums.ImportPhaseCategories, started, res.Succeeded, len(res.Failures), res.Retries)

	st.mu.Lock()
	st.tree = st.tree.With(st.created...)
	st.mu.Unlock()
	return err
}

func (st *runState) parentFor(prop categories.Proposal) (*uuid.UUID, error) {
	if prop.ParentKey == "" {
		return prop.ParentID, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	id, ok := st.keyToID[prop.ParentKey]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("parent category %q was not created", prop.ParentKey))
	}
	return &id, nil
}

func (st *runState) recordCategory(key string, node categories.Node, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.keyToID[key] = node.ID
	st.created = append(st.created, node)
	if created {
		st.report.CategoriesCreated++
	} else {
		st.report.CategoriesReused++
	}
}

// reresolve assigns every selected product its final category id using the
// post-creation tree: the current id, then the proposal created for its path,
// then slug or name matching.
func (o *Orchestrator) reresolve(st *runState, selected []drafts.ProductDraft) ([]drafts.ProductDraft, []drafts.ProductDraft) {
	var resolved, unresolved []drafts.ProductDraft
	for _, p := range selected {
		if p.CategoryID != nil {
			if _, ok := st.tree.Get(*p.CategoryID); ok {
				resolved = append(resolved, p)
				continue
			}
		}
		p.CategoryID = nil
		if !categories.HasCategory(p.RawCategory) {
			resolved = append(resolved, p)
			continue
		}
		if chain := st.in.Tree.MissingChain(p.RawCategory); len(chain) > 0 {
			if id, ok := st.keyToID[chain[len(chain)-1].Key]; ok {
				p.CategoryID = &id
			}
		}
		if p.CategoryID == nil {
			if n, ok := st.tree.Lookup(p.RawCategory); ok {
				id := n.ID
				p.CategoryID = &id
			}
		}
		if p.CategoryID == nil {
			unresolved = append(unresolved, p)
			continue
		}
		resolved = append(resolved, p)
	}
	return resolved, unresolved
}

// productWrite tracks one product across the write phases so a retried
// handler never repeats a write that already landed.
type productWrite struct {
	draft     drafts.ProductDraft
	productID uuid.UUID
	written   bool

	cleared  bool
	deleted  int
	variants []uuid.UUID
	created  int
	failed   bool
}

func (o *Orchestrator) writeProducts(ctx context.Context, st *runState, products []drafts.ProductDraft) ([]*productWrite, error) {
	started := time.Now()
	phaseCtx := o.logg.WithPhase(ctx, string(enums.ImportPhaseProducts))

	items := make([]*productWrite, len(products))
	for i, p := range products {
		w := &productWrite{draft: p, productID: uuid.New()}
		if p.Action == enums.ImportActionUpdate && p.Existing != nil {
			w.productID = p.Existing.ID
		}
		items[i] = w
	}

	tenantID := st.in.TenantID
	res, err := batch.Run(phaseCtx, items, func(ctx context.Context, _ int, w *productWrite) error {
		if w.written {
			return nil
		}
		doc := catalog.Product{
			ID:               w.productID,
			TenantID:         tenantID,
			Code:             w.draft.ProductCode,
			Name:             w.draft.Name,
			CategoryID:       w.draft.CategoryID,
			ShortDescription: w.draft.ShortDescription,
			FullDescription:  w.draft.FullDescription,
			ImageURL:         w.draft.ImageURL,
		}
		switch w.draft.Action {
		case enums.ImportActionUpdate:
			if w.draft.Existing == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "update requires an existing product")
			}
			if _, err := o.store.UpdateProduct(ctx, doc); err != nil {
				return err
			}
		default:
			if _, err := o.store.CreateProduct(ctx, doc); err != nil && !alreadyWritten(err) {
				return err
			}
		}
		w.written = true
		return nil
	}, o.phaseOptions(enums.ImportPhaseProducts, st, nil))

	failed := make(map[int]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.Index] = true
		st.report.addFailure(o.failureLimit, detailFor(enums.ImportPhaseProducts, f.Item.draft, f))
	}
	st.report.Retries += res.Retries
	o.observe(enums.ImportPhaseProducts, started, res.Succeeded, len(res.Failures), res.Retries)

	var written []*productWrite
	for i, w := range items {
		if failed[i] || !w.written {
			continue
		}
		if w.draft.Action == enums.ImportActionUpdate {
			st.report.ProductsUpdated++
		} else {
			st.report.ProductsCreated++
		}
		written = append(written, w)
	}
	return written, err
}

// writeVariants inserts each product's variants. Updated products first have
// every stored variant deleted, so the result is a full replace.
func (o *Orchestrator) writeVariants(ctx context.Context, st *runState, items []*productWrite) error {
	if len(items) == 0 {
		return nil
	}
	started := time.Now()
	phaseCtx := o.logg.WithPhase(ctx, string(enums.ImportPhaseVariants))
	tenantID := st.in.TenantID

	res, err := batch.Run(phaseCtx, items, func(ctx context.Context, _ int, w *productWrite) error {
		if w.draft.Action == enums.ImportActionUpdate && !w.cleared {
			stored, err := o.store.ListVariants(ctx, tenantID, w.productID)
			if err != nil {
				return err
			}
			for _, v := range stored {
				if err := o.store.DeleteVariant(ctx, tenantID, v.ID); err != nil {
					if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
						return err
					}
				}
				w.deleted++
			}
			w.cleared = true
		}

		if w.variants == nil {
			w.variants = make([]uuid.UUID, len(w.draft.Variants))
			for i := range w.variants {
				w.variants[i] = uuid.New()
			}
		}
		for w.created < len(w.draft.Variants) {
			i := w.created
			v := w.draft.Variants[i]
			_, err := o.store.CreateVariant(ctx, catalog.Variant{
				ID:          w.variants[i],
				TenantID:    tenantID,
				ProductID:   w.productID,
				SKU:         v.SKU,
				Size:        v.Size,
				Finish:      v.Finish,
				PackingSize: v.PackingSize,
				HSNCode:     v.HSNCode,
				Material:    v.Material,
				Notes:       v.Notes,
				Price:       v.Price,
				Position:    i,
			})
			if err != nil && !alreadyWritten(err) {
				return err
			}
			w.created++
		}
		return nil
	}, o.phaseOptions(enums.ImportPhaseVariants, st, nil))

	for _, f := range res.Failures {
		f.Item.failed = true
		st.report.addFailure(o.failureLimit, detailFor(enums.ImportPhaseVariants, f.Item.draft, f))
	}
	for _, w := range items {
		st.report.VariantsWritten += w.created
		st.report.VariantsDeleted += w.deleted
	}
	st.report.Retries += res.Retries
	o.observe(enums.ImportPhaseVariants, started, res.Succeeded, len(res.Failures), res.Retries)
	return err
}

// alreadyWritten treats a conflict on a client-chosen id as the earlier
// attempt having landed.
func alreadyWritten(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeConflict
}

func detailFor[T any](phase enums.ImportPhase, draft drafts.ProductDraft, f batch.Failure[T]) FailureDetail {
	return FailureDetail{
		Phase:    phase,
		Label:    draft.Label(),
		Status:   f.Status,
		Message:  f.Message,
		Type:     f.Type,
		Attempts: f.Attempts,
	}
}
