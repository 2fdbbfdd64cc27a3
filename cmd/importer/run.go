package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/packfinderz-catalog/internal/catalog"
	"github.com/angelmondragon/packfinderz-catalog/internal/docstore"
	"github.com/angelmondragon/packfinderz-catalog/internal/imports"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	"github.com/angelmondragon/packfinderz-catalog/pkg/db"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
	"github.com/angelmondragon/packfinderz-catalog/pkg/migrate"
	"github.com/angelmondragon/packfinderz-catalog/pkg/storage/gcs"
)

type runOptions struct {
	file             string
	gcsRef           string
	tenant           string
	defaultAction    string
	scope            string
	createCategories bool
	dryRun           bool
	jsonOutput       bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Preview and run an import file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.file, "file", "", "local .csv, .xlsx or .json file")
	flags.StringVar(&opts.gcsRef, "gcs", "", "object to import: gs://bucket/path or a name in the configured bucket")
	flags.StringVar(&opts.tenant, "tenant", "", "tenant id owning the catalog (required)")
	flags.StringVar(&opts.defaultAction, "default-action", "", "create|update|skip applied with --scope before running")
	flags.StringVar(&opts.scope, "scope", string(enums.BulkScopeDuplicates), "duplicates|all")
	flags.BoolVar(&opts.createCategories, "create-categories", true, "create every missing category the file references")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the preview without writing anything")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of text")
	_ = cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagsMutuallyExclusive("file", "gcs")
	cmd.MarkFlagsOneRequired("file", "gcs")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "importer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	name, data, err := readSource(ctx, cfg, logg, opts)
	if err != nil {
		return err
	}

	store, closeStore, err := openCatalogStore(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator, err := imports.NewOrchestrator(imports.OrchestratorParams{
		Store:        store,
		Engine:       imports.EngineOptions(cfg.Import),
		Logger:       logg,
		FailureLimit: cfg.Import.FailureDetailLimit,
	})
	if err != nil {
		return err
	}
	svc, err := imports.NewService(imports.ServiceParams{
		Store:        store,
		Sessions:     imports.NewMemorySessionStore(),
		Orchestrator: orchestrator,
		Logger:       logg,
	})
	if err != nil {
		return err
	}

	return execute(ctx, out, logg, svc, orchestrator, opts, name, data)
}

// execute previews the file, applies the CLI choices and runs the plan on ctx.
func execute(ctx context.Context, out io.Writer, logg *logger.Logger, svc imports.Service, orchestrator *imports.Orchestrator, opts runOptions, name string, data []byte) error {
	tenantID, err := uuid.Parse(opts.tenant)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}
	ctx = logg.WithTenantID(ctx, tenantID.String())

	session, err := svc.Preview(ctx, imports.PreviewInput{
		TenantID: tenantID,
		UserID:   "cli",
		FileName: name,
		Data:     data,
	})
	if err != nil {
		return err
	}
	ctx = logg.WithImportID(ctx, session.ID.String())

	if opts.defaultAction != "" {
		action, err := enums.ParseImportAction(opts.defaultAction)
		if err != nil {
			return fmt.Errorf("invalid --default-action: %w", err)
		}
		scope, err := enums.ParseBulkScope(opts.scope)
		if err != nil {
			return fmt.Errorf("invalid --scope: %w", err)
		}
		if session, _, err = svc.BulkApply(ctx, tenantID, session.ID, action, scope); err != nil {
			return err
		}
	}

	selectAll := opts.createCategories
	if session, err = svc.SetCategories(ctx, tenantID, session.ID, imports.CategoryChoices{SelectAll: &selectAll}); err != nil {
		return err
	}

	p := printer{out: out, json: opts.jsonOutput}
	if opts.dryRun {
		return p.preview(session)
	}

	var (
		mu    sync.Mutex
		phase enums.ImportPhase
	)
	report, runErr := orchestrator.Run(ctx, imports.RunInput{
		TenantID: tenantID,
		Plan:     session.Plan,
		Tree:     session.Tree(),
		OnProgress: func(prog imports.Progress) {
			mu.Lock()
			defer mu.Unlock()
			if prog.Phase != phase || prog.Completed == prog.Total {
				phase = prog.Phase
				logg.Info(logg.WithFields(ctx, map[string]any{
					"completed": prog.Completed,
					"total":     prog.Total,
				}), "import phase "+string(prog.Phase))
			}
		},
	})
	if report != nil {
		if err := p.report(report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Status != enums.ImportStatusCompleted {
		return fmt.Errorf("import %s: %s", report.Status, report.Message)
	}
	return nil
}

func readSource(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts runOptions) (string, []byte, error) {
	limit := cfg.Import.MaxUploadBytes()
	if opts.file != "" {
		info, err := os.Stat(opts.file)
		if err != nil {
			return "", nil, err
		}
		if info.Size() > limit {
			return "", nil, fmt.Errorf("%s is larger than %d bytes", opts.file, limit)
		}
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(opts.file), data, nil
	}

	client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return "", nil, err
	}
	bucket, object, err := gcs.ParseObjectRef(opts.gcsRef, client.DefaultBucket())
	if err != nil {
		return "", nil, err
	}
	data, err := client.Download(ctx, bucket, object, limit)
	if err != nil {
		return "", nil, err
	}
	return path.Base(object), data, nil
}

func openCatalogStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (catalog.Store, func(), error) {
	if cfg.Catalog.UsesDocStore() {
		client, err := docstore.NewClient(cfg.DocStore, nil, logg)
		if err != nil {
			return nil, nil, err
		}
		store, err := docstore.NewStore(client, docstore.CollectionsFrom(cfg.DocStore))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = dbClient.Close() }
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		closeDB()
		return nil, nil, err
	}
	return catalog.NewRepository(dbClient.DB()), closeDB, nil
}
