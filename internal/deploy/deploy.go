// Package deploy runs the full deployment of the coffee demo: prerequisite
// checks, cluster provisioning, image build and load, the tiered manifest
// apply and a smoke test through a port-forward.
package deploy

import (
	"context"
	"fmt"
	"io"

	"coffeectl/internal/cluster"
	"coffeectl/internal/config"
	"coffeectl/internal/dbcheck"
	"coffeectl/internal/images"
	"coffeectl/internal/kube"
	"coffeectl/internal/manifest"
	"coffeectl/internal/portforward"
	"coffeectl/internal/prober"
	"coffeectl/internal/runner"
	"coffeectl/internal/smoketest"
	"coffeectl/pkg/logging"
)

// Step names a stage of the pipeline.
type Step string

const (
	StepTools   Step = "tools"
	StepCluster Step = "cluster"
	StepImages  Step = "images"
	StepReach   Step = "connectivity"
	StepApply   Step = "manifests"
	StepSmoke   Step = "smoke test"
)

// Status is the outcome of a step, or of a tier inside the apply step.
type Status string

const (
	StatusStarted Status = "started"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Event is reported to the Reporter as the pipeline progresses.
type Event struct {
	Step   Step
	Status Status
	Detail string
	Err    error
}

// Options switches stages off.
type Options struct {
	SkipProvision bool
	SkipBuild     bool
	SkipSmoke     bool
}

// Summary is what a run produced.
type Summary struct {
	Checks         []prober.Check
	ClusterCreated bool
	Images         []string
	Tiers          []manifest.TierResult
	Database       *dbcheck.Info
	Smoke          *smoketest.Result
}

// Pipeline deploys one configuration.
type Pipeline struct {
	cfg    config.Config
	runner runner.Runner
	kube   kube.Manager

	// Reporter, when set, receives every step transition.
	Reporter func(Event)
	// BuildOutput receives docker build output; nil keeps it in the debug log.
	BuildOutput io.Writer
}

// New returns a Pipeline for cfg.
func New(cfg config.Config, r runner.Runner, km kube.Manager) *Pipeline {
	return &Pipeline{cfg: cfg, runner: r, kube: km}
}

// Run executes the pipeline and stops at the first failing step. Nothing
// is rolled back.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	kubeContext := p.cfg.Cluster.KubeContext()
	probe := prober.New(p.cfg.Cluster, p.runner, p.kube)

	p.report(StepTools, StatusStarted, "")
	report, err := probe.Tools(ctx)
	summary.Checks = append(summary.Checks, report.Checks...)
	if err != nil {
		return summary, p.fail(StepTools, err)
	}
	p.report(StepTools, StatusDone, fmt.Sprintf("%d checks passed", len(report.Checks)))

	provisioner, err := cluster.New(p.cfg.Cluster, p.runner, p.kube)
	if err != nil {
		return summary, p.fail(StepCluster, err)
	}
	if opts.SkipProvision {
		p.report(StepCluster, StatusSkipped, "")
	} else {
		p.report(StepCluster, StatusStarted, provisioner.Name())
		created, err := cluster.Ensure(ctx, provisioner, p.kube)
		if err != nil {
			return summary, p.fail(StepCluster, err)
		}
		summary.ClusterCreated = created
		detail := "reused " + kubeContext
		if created {
			detail = "created " + kubeContext
		}
		p.report(StepCluster, StatusDone, detail)
	}

	if opts.SkipBuild {
		p.report(StepImages, StatusSkipped, "")
	} else {
		p.report(StepImages, StatusStarted, "")
		builder := images.NewBuilder(p.runner)
		builder.Out = p.BuildOutput
		if err := builder.BuildAll(ctx, p.cfg.Images); err != nil {
			return summary, p.fail(StepImages, err)
		}
		summary.Images = images.Names(p.cfg.Images)
		if err := cluster.LoadImages(ctx, provisioner, summary.Images); err != nil {
			return summary, p.fail(StepImages, err)
		}
		p.report(StepImages, StatusDone, fmt.Sprintf("%d image(s) built and loaded", len(summary.Images)))
	}

	// The cluster must answer before anything is applied to it.
	p.report(StepReach, StatusStarted, kubeContext)
	report, err = probe.Cluster(ctx)
	summary.Checks = append(summary.Checks, report.Checks...)
	if err != nil {
		return summary, p.fail(StepReach, err)
	}
	p.report(StepReach, StatusDone, kubeContext)

	clients, err := p.kube.Clients(kubeContext)
	if err != nil {
		return summary, p.fail(StepApply, err)
	}

	p.report(StepApply, StatusStarted, p.cfg.Namespace)
	applier := manifest.New(p.runner, clients.Kube, kubeContext, p.cfg.Namespace)
	applier.Retry = p.cfg.Retry
	applier.EventLimit = p.cfg.Events.Limit
	applier.Observer = func(t manifest.Transition) {
		p.emit(Event{Step: StepApply, Status: Status(t.State), Detail: tierDetail(t)})
	}
	if p.cfg.Database.Verify {
		applier.AfterTier = func(ctx context.Context, tier config.TierDefinition) error {
			if tier.Name != config.TierDatabase {
				return nil
			}
			info, err := p.verifyDatabase(ctx, clients)
			if err != nil {
				return err
			}
			summary.Database = &info
			return nil
		}
	}
	summary.Tiers, err = applier.Apply(ctx, p.cfg.Tiers)
	if err != nil {
		return summary, p.fail(StepApply, err)
	}
	p.report(StepApply, StatusDone, fmt.Sprintf("%d tier(s) ready", len(summary.Tiers)))

	if opts.SkipSmoke {
		p.report(StepSmoke, StatusSkipped, "")
		return summary, nil
	}
	p.report(StepSmoke, StatusStarted, p.cfg.Service.Name)
	result, err := RunSmoke(ctx, clients, p.cfg)
	summary.Smoke = &result
	if err != nil {
		return summary, p.fail(StepSmoke, err)
	}
	p.report(StepSmoke, StatusDone, fmt.Sprintf("%d requests passed as %s", len(result.Steps), result.Customer))
	return summary, nil
}

// RunSmoke runs the smoke test through a port-forward to the application
// service. The forward is closed when RunSmoke returns.
func RunSmoke(ctx context.Context, clients *kube.Clients, cfg config.Config) (smoketest.Result, error) {
	var result smoketest.Result
	target := portforward.Target{
		Namespace: cfg.Namespace,
		Service:   cfg.Service.Name,
		Port:      cfg.Service.Port,
		LocalPort: cfg.Service.LocalPort,
	}
	err := portforward.With(ctx, clients, target, func(s *portforward.Session) error {
		var err error
		result, err = smoketest.New(s.LocalURL(), cfg.Smoke).Run(ctx)
		return err
	})
	return result, err
}

// CheckDatabase runs dbcheck.Check through a port-forward to the database
// service.
func CheckDatabase(ctx context.Context, clients *kube.Clients, cfg config.Config) (dbcheck.Info, error) {
	var info dbcheck.Info
	target := portforward.Target{
		Namespace: cfg.Namespace,
		Service:   cfg.Database.Service,
		Port:      cfg.Database.Port,
	}
	err := portforward.With(ctx, clients, target, func(s *portforward.Session) error {
		var err error
		info, err = dbcheck.Check(ctx, dbcheck.DSN(cfg.Database, "127.0.0.1", s.LocalPort()))
		return err
	})
	return info, err
}

func (p *Pipeline) verifyDatabase(ctx context.Context, clients *kube.Clients) (dbcheck.Info, error) {
	info, err := CheckDatabase(ctx, clients, p.cfg)
	if err != nil {
		return info, err
	}
	if !info.OrdersTable {
		logging.Warn("Deploy", "Database %s is reachable but has no %s table yet", info.Database, dbcheck.OrdersTable)
	}
	return info, nil
}

func tierDetail(t manifest.Transition) string {
	switch {
	case t.Detail != "" && t.Attempt > 0:
		return fmt.Sprintf("%s (attempt %d): %s", t.Tier, t.Attempt, t.Detail)
	case t.State == manifest.StateApplied:
		return fmt.Sprintf("%s: %d resource(s)", t.Tier, len(t.Resources))
	default:
		return t.Tier
	}
}

func (p *Pipeline) report(step Step, status Status, detail string) {
	p.emit(Event{Step: step, Status: status, Detail: detail})
}

func (p *Pipeline) fail(step Step, err error) error {
	p.emit(Event{Step: step, Status: StatusFailed, Err: err})
	return err
}

func (p *Pipeline) emit(e Event) {
	logging.Debug("Deploy", "%s %s %s", e.Step, e.Status, e.Detail)
	if p.Reporter != nil {
		p.Reporter(e)
	}
}
