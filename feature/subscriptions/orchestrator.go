package subscriptions

import (
	"context"
	"time"

	"asc-manager/core/appstore"
	"asc-manager/core/reconcile"
	"asc-manager/feature/pricing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Config holds orchestrator settings.
type Config struct {
	Reconcile reconcile.Config
	Pricing   pricing.Config
}

// Orchestrator reconciles desired-state records against the remote system.
type Orchestrator struct {
	svc      *appstore.Service
	cfg      Config
	executor *reconcile.Executor
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. observer may be nil.
func NewOrchestrator(svc *appstore.Service, cfg Config, logger *zap.Logger, observer reconcile.Observer) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		svc:      svc,
		cfg:      cfg,
		executor: reconcile.NewExecutor(cfg.Reconcile, logger, observer),
		logger:   logger,
		now:      time.Now,
	}
}

func needsAll(records []Record) bool {
	return lo.SomeBy(records, func(r Record) bool {
		if r.Territories.All {
			return true
		}
		return lo.SomeBy(r.Offers, func(o Offer) bool { return r.territoriesOf(o).All })
	})
}

func failAll(plan *reconcile.Plan, records []Record, err error) {
	for _, rec := range records {
		plan.Fail(reconcile.KindSubscription, reconcile.Target{ProductID: rec.ProductID}, err)
	}
}

// Plan reads current state and computes the writes needed for records. A
// failure to read shared state fails every record instead of returning an
// error, so the caller always gets a complete report.
func (o *Orchestrator) Plan(ctx context.Context, bundleID string, records []Record) *reconcile.Plan {
	plan := reconcile.NewPlan()

	cat, err := loadCatalog(ctx, o.svc, bundleID, o.cfg.Reconcile.Workers)
	if err != nil {
		failAll(plan, records, err)
		return plan
	}

	p := &planner{
		svc:      o.svc,
		resolver: pricing.NewResolver(o.cfg.Pricing, o.svc, o.logger),
		policy:   o.cfg.Pricing,
		workers:  o.cfg.Reconcile.Workers,
		today:    o.now().UTC().Format(time.DateOnly),
		logger:   o.logger,
		plan:     plan,
	}
	if needsAll(records) {
		territories, err := o.svc.ListTerritories(ctx)
		if err != nil {
			failAll(plan, records, err)
			return plan
		}
		p.all = lo.Map(territories, func(t appstore.Territory, _ int) string { return t.Code })
	}

	p.build(ctx, records, cat)
	if ctx.Err() != nil {
		o.logger.Warn("Planning cancelled, unread records are reported cancelled")
	}

	hits, misses := p.resolver.CacheStats()
	summary := plan.Summary()
	o.logger.Info("Plan computed",
		zap.String("app", cat.app.ID),
		zap.Int("records", len(records)),
		zap.Int("writes", plan.Len()),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("equalization_hits", hits),
		zap.Int64("equalization_misses", misses),
	)
	return plan
}

// Apply executes plan and returns the report.
func (o *Orchestrator) Apply(ctx context.Context, plan *reconcile.Plan, opts reconcile.ApplyOptions) *reconcile.Report {
	report := o.executor.Execute(ctx, plan, opts)
	report.RunID = uuid.NewString()

	o.logger.Info("Reconciliation finished",
		zap.String("run_id", report.RunID),
		zap.Bool("dry_run", report.DryRun),
		zap.Stringer("summary", report.Summary),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// Run plans and applies records in one go.
func (o *Orchestrator) Run(ctx context.Context, bundleID string, records []Record, opts reconcile.ApplyOptions) *reconcile.Report {
	started := o.now()
	report := o.Apply(ctx, o.Plan(ctx, bundleID, records), opts)
	report.StartedAt = started
	return report
}
