// Package auditor wires every component together into one process-lifetime
// value: the histograms and counters live on this struct, not in
// package-scope globals.
package auditor

import (
	"context"
	"time"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/lister"
	"github.com/objaudit/auditor/internal/prober"
	"github.com/objaudit/auditor/internal/rescue"
	"github.com/objaudit/auditor/internal/ring"
	"github.com/objaudit/auditor/internal/scheduler"
	"github.com/objaudit/auditor/internal/stats"
)

// Config is the run-wide configuration, collecting every command-line flag.
type Config struct {
	Concurrency   int
	RingDir       string
	ErrorFilePath string
	Delete        bool
	CheckAll      bool
	Thorough      bool
	MinAge        time.Duration
	Verbose       bool
	SSHRescue     bool
	StatsInterval time.Duration
}

// DefaultConfig holds the documented flag defaults.
var DefaultConfig = Config{
	Concurrency:   50,
	RingDir:       "/etc/swift",
	StatsInterval: stats.StatsInterval,
}

// Auditor is one process invocation's worth of state: the wired
// components, the scheduler, and the stats reporter.
type Auditor struct {
	cfg       Config
	ring      ring.Ring
	direct    *directclient.Client
	rescue    *rescue.Dispatcher
	reporter  *stats.Reporter
	errFile   *stats.ErrorFile
	scheduler *scheduler.Scheduler
	prober    *prober.Prober
	container *lister.ContainerLister
	account   *lister.AccountLister
}

// New wires every component for one run. r and direct may be swapped out
// in tests.
func New(cfg Config, r ring.Ring, direct *directclient.Client) (*Auditor, error) {
	reporter := stats.New()

	var errFile *stats.ErrorFile
	if cfg.ErrorFilePath != "" {
		f, err := stats.OpenErrorFile(cfg.ErrorFilePath)
		if err != nil {
			return nil, err
		}
		errFile = f
	}

	rescueCfg := rescue.DefaultConfig
	rescueCfg.SSHMode = cfg.SSHRescue
	resc := rescue.New(rescueCfg)

	sched := scheduler.New(cfg.Concurrency)

	pr := prober.New(r, direct, resc, reporter, errFile, prober.Config{
		CheckAll: cfg.CheckAll,
		Delete:   cfg.Delete,
		Verbose:  cfg.Verbose,
	})

	cl := lister.New(r, direct, pr, sched.Objects, reporter, lister.Config{
		Thorough: cfg.Thorough,
		MinAge:   cfg.MinAge,
	})

	al := lister.NewAccountLister(r, direct, sched, cl, reporter)

	return &Auditor{
		cfg:       cfg,
		ring:      r,
		direct:    direct,
		rescue:    resc,
		reporter:  reporter,
		errFile:   errFile,
		scheduler: sched,
		prober:    pr,
		container: cl,
		account:   al,
	}, nil
}

// Run audits every target, dispatching account/container/object targets
// appropriately, then quiesces, waits for rescues, and returns the final
// snapshot.
func (a *Auditor) Run(ctx context.Context, targets []core.Path) stats.Snapshot {
	a.reporter.RunPeriodic(a.cfg.StatsInterval, func(s stats.Snapshot) {
		log.Infof("%s", s)
	})
	defer a.reporter.Stop()

	for _, t := range targets {
		switch {
		case t.IsObject():
			// Explicit object targets bypass age filtering and the
			// Container Lister entirely.
			a.scheduler.Objects.Spawn(func() {
				if _, err := a.prober.Probe(ctx, t.Account, t.Container, t.Object, "", time.Time{}); err != nil {
					log.Errorf("probe for %s failed: %s", t.String(), err)
				}
			})
		case t.IsContainer():
			a.scheduler.Containers.Spawn(func() {
				a.container.Audit(ctx, t.Account, t.Container)
			})
		default:
			a.account.Audit(ctx, t.Account)
		}
	}

	a.scheduler.QuiesceAll()
	a.rescue.WaitForRescues()

	snap := a.reporter.Snapshot()
	log.Infof("run complete%s", snap)
	return snap
}

// Close releases resources (error file) held by the Auditor.
func (a *Auditor) Close() error {
	if a.errFile != nil {
		return a.errFile.Close()
	}
	return nil
}
