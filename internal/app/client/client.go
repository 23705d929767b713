package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"posclient/internal/app/client/config"
	supportAPI "posclient/internal/app/support/api"
	"posclient/internal/domain/erp"
	"posclient/internal/domain/outbox"
	"posclient/internal/domain/returns"
	"posclient/internal/domain/session"
	"posclient/internal/domain/snapshot"
	"posclient/internal/infrastructure/metrics"
	"posclient/internal/infrastructure/storage/sqlite"
)

// Job names known to the scheduler.
const (
	JobSync      = "sync"
	JobPush      = "push"
	JobReconcile = "reconcile"
)

// App wires local storage, the ERP client and the domain services of one device.
type App struct {
	config     *config.Config
	log        *slog.Logger
	metrics    *metrics.Metrics
	storage    *sqlite.Storage
	httpClient *ERPClient

	syncService *SyncService
	outbox      *outbox.Service
	sessions    *session.Service
	returns     *returns.Service
	scheduler   *Scheduler
}

// NewCustomerRequest describes a customer created at the register.
type NewCustomerRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerGroup string `json:"customer_group,omitempty"`
	Territory     string `json:"territory,omitempty"`
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	storage, err := sqlite.New(cfg.DataPath, log)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	m := metrics.New()
	httpCl := NewHTTPClient(cfg, m, log)

	diag := storage.Diagnostics()
	fetcher := snapshot.NewFetcher(httpCl, diag, log, &snapshot.FetcherConfig{PageSize: cfg.PageSize})
	persister := snapshot.NewPersister(storage.Snapshots(), diag, log)

	outboxService := outbox.NewService(storage.Outbox(), outbox.DefaultHandlers(httpCl), log)

	app := &App{
		config:      cfg,
		log:         log,
		metrics:     m,
		storage:     storage,
		httpClient:  httpCl,
		syncService: NewSyncService(fetcher, persister, diag, m, cfg.StatsPath, log),
		outbox:      outboxService,
		sessions:    session.NewService(storage.Sessions(), httpCl, outboxService, log),
		returns:     returns.NewService(storage.Returns(), httpCl, log),
		scheduler:   NewScheduler(m, log),
	}

	app.scheduler.Add(JobSync, cfg.SyncInterval, func(ctx context.Context) error {
		_, err := app.Sync(ctx, SyncOptions{})
		return err
	})
	app.scheduler.Add(JobPush, cfg.PushInterval, func(ctx context.Context) error {
		_, err := app.PushOutbox(ctx)
		return err
	})
	app.scheduler.Add(JobReconcile, cfg.PushInterval, func(ctx context.Context) error {
		_, err := app.ReconcileSessions(ctx)
		return err
	})

	return app, nil
}

// Close releases local storage.
func (a *App) Close() error {
	return a.storage.Close()
}

// Run starts the scheduler and the support API and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr: a.config.SupportAddress,
		Handler: supportAPI.New(supportAPI.Deps{
			Diagnostics: a.storage.Diagnostics(),
			Outbox:      a.outbox,
			Sync:        a.syncService,
			Metrics:     a.metrics.Handler(),
		}, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	g.Go(func() error {
		a.log.Info("support api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("support api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.log.Info("client started", "erp_url", a.config.ERPURL, "env", a.config.Env)
	err := g.Wait()
	a.log.Info("client stopped")
	return err
}

// Trigger runs a scheduled job now.
func (a *App) Trigger(ctx context.Context, job string) error {
	return a.scheduler.Trigger(ctx, job)
}

// CheckConnection pings the ERP backend.
func (a *App) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.httpClient.HealthCheck(ctx)
}

// Login checks an API key pair against the backend and saves it for later runs.
// On failure the previous credentials stay in use.
func (a *App) Login(ctx context.Context, apiKey, apiSecret string) (string, error) {
	a.httpClient.SetCredentials(apiKey, apiSecret)
	user, err := a.httpClient.LoggedUser(ctx)
	if err != nil {
		a.httpClient.SetCredentials(a.config.APIKey, a.config.APISecret)
		return "", fmt.Errorf("verify credentials: %w", err)
	}

	if err := config.SaveCredentials(a.config.CredentialsPath, apiKey, apiSecret); err != nil {
		return "", err
	}
	a.config.APIKey, a.config.APISecret = apiKey, apiSecret
	a.log.Info("credentials saved", "user", user)
	return user, nil
}

// WhoAmI returns the user the current credentials authenticate as.
func (a *App) WhoAmI(ctx context.Context) (string, error) {
	return a.httpClient.LoggedUser(ctx)
}

// Sync fetches and persists the snapshot. An empty profile uses the configured one.
func (a *App) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if opts.Profile == "" {
		opts.Profile = a.config.POSProfile
	}
	return a.syncService.Sync(ctx, opts)
}

func (a *App) SyncStats() SyncStats {
	return a.syncService.GetStats()
}

func (a *App) ResetSyncStats() {
	a.syncService.ResetStats()
}

func (a *App) Diagnostics(ctx context.Context) ([]snapshot.SectionDiagnostics, error) {
	return a.storage.Diagnostics().LatestDiagnostics(ctx)
}

// PushOutbox pushes pending entries and records the outcome.
func (a *App) PushOutbox(ctx context.Context) (*outbox.PushReport, error) {
	report, err := a.outbox.PushPendingWithReport(ctx)
	if report != nil {
		a.metrics.OutboxOutcomes(report.Pushed, report.Failed, len(report.Conflicts))
	}
	return report, err
}

func (a *App) ListOutbox(ctx context.Context, filter outbox.ListFilter) ([]outbox.Entry, error) {
	return a.outbox.List(ctx, filter)
}

func (a *App) PruneOutbox(ctx context.Context) (int, error) {
	return a.outbox.Prune(ctx)
}

// CreateCustomer stores a customer under a placeholder name and queues its creation.
func (a *App) CreateCustomer(ctx context.Context, req NewCustomerRequest) (*outbox.Entry, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return nil, errors.New("customer name is required")
	}

	name := erp.NewPlaceholder()
	local := erp.Customer{
		Name:          name,
		CustomerName:  req.CustomerName,
		CustomerGroup: req.CustomerGroup,
		Territory:     req.Territory,
	}
	payload, err := json.Marshal(local)
	if err != nil {
		return nil, fmt.Errorf("encode customer: %w", err)
	}

	err = a.storage.Customers().SaveLocal(ctx, sqlite.Customer{
		Name:          name,
		CustomerName:  req.CustomerName,
		CustomerGroup: req.CustomerGroup,
		Territory:     req.Territory,
	}, payload)
	if err != nil {
		return nil, fmt.Errorf("save local customer: %w", err)
	}

	entry, err := a.outbox.Enqueue(ctx, outbox.EntityCustomer, name, req)
	if err != nil {
		return nil, err
	}
	a.log.Info("customer created offline", "local_id", name, "customer_name", req.CustomerName)
	return entry, nil
}

// OpenSession opens a register session under the configured profile when none is given.
func (a *App) OpenSession(ctx context.Context, req session.OpenRequest) (*session.Session, error) {
	if req.POSProfile == "" {
		req.POSProfile = a.config.POSProfile
	}
	return a.sessions.OpenSession(ctx, req)
}

func (a *App) CloseSession(ctx context.Context, localID string, counts []session.ClosingCount) (*session.Session, error) {
	return a.sessions.CloseSession(ctx, localID, counts)
}

// ReconcileSessions adopts remote closings and pushes the local ones. It reports
// whether anything changed.
func (a *App) ReconcileSessions(ctx context.Context) (bool, error) {
	adopted, errReconcile := a.sessions.ReconcileRemoteClosingsForActiveSessions(ctx)
	pushed, errPush := a.sessions.PushPendingClosings(ctx)
	return adopted || pushed, errors.Join(errReconcile, errPush)
}

func (a *App) ReconcileRemoteClosings(ctx context.Context) (bool, error) {
	return a.sessions.ReconcileRemoteClosingsForActiveSessions(ctx)
}

func (a *App) PushPendingClosings(ctx context.Context) (bool, error) {
	return a.sessions.PushPendingClosings(ctx)
}

func (a *App) SubmitReturn(ctx context.Context, req returns.Request) (*returns.Result, error) {
	return a.returns.SubmitPartialReturn(ctx, req)
}
