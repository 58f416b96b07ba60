package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/viresathorn804-oss/discord-bot5/internal/config"
	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/observability/metrics"
	rtsup "github.com/viresathorn804-oss/discord-bot5/internal/runtime/supervisor"
	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	"github.com/viresathorn804-oss/discord-bot5/internal/storage"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *prometheus.Registry

	adapter transport.Adapter
	sched   *schedule.Service
	mod     *moderation.Service
	disp    *moderation.Dispatcher
	metrics *metrics.Server

	// The audit writer outlives the supervisor context so lifts fired while
	// the schedule stops are still recorded.
	auditCancel context.CancelFunc
	auditDone   chan struct{}

	cronMu   sync.Mutex
	cron     *cron.Cron
	statusID cron.EntryID
}

type Option func(*options)

type options struct {
	adapter transport.Adapter
}

// WithAdapter replaces the platform adapter the config would build.
func WithAdapter(ad transport.Adapter) Option {
	return func(o *options) { o.adapter = ad }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sink needs the adapter, which needs a logger: start without a
	// sender and attach it once the adapter exists.
	logSvc, root := logx.NewService(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	ad := o.adapter
	if ad == nil {
		if ad, err = newAdapter(cfg, root); err != nil {
			_ = logSvc.Close()
			return nil, err
		}
	}
	logSvc.SetChatTarget(logTarget(cfg))
	logSvc.SetSender(ad)

	bus := eventbus.New()

	// Audit storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	closeAll := func() {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ss, err := cfg.ScheduleSettings()
	if err != nil {
		closeAll()
		return nil, err
	}
	fileStore, err := schedule.NewFileStore(ss.StatePath)
	if err != nil {
		closeAll()
		return nil, err
	}
	sched, err := schedule.New(schedule.Options{
		Store:            fileStore,
		Executor:         moderation.NewExecutor(ad, root),
		Logger:           root,
		Bus:              bus,
		Metrics:          schedule.NewMetrics(reg),
		MinDelay:         ss.MinDelay,
		ReconcileWorkers: ss.ReconcileWorkers,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	mod, err := moderation.NewService(moderation.Options{
		Scheduler: sched,
		Platform:  ad,
		Bus:       bus,
		Logger:    root,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		reg:     reg,
		adapter: ad,
		sched:   sched,
		mod:     mod,
		disp:    moderation.NewDispatcher(mod, root, commandTimeout),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(mapMetricsConfig(cfg), reg, sched.Ready, root)
	}
	return a, nil
}

// Schedule exposes the lift schedule (read-only use).
func (a *App) Schedule() *schedule.Service { return a.sched }

// Dispatcher is the command entry point adapters feed.
func (a *App) Dispatcher() *moderation.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start reconciles the durable schedule before any command is accepted, then
// connects the platform.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := cfg.ScheduleSettings(); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe("", 256)
		auditCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.auditCancel = cancel
		a.auditDone = make(chan struct{})
		go func() {
			defer close(a.auditDone)
			defer unsub()
			runAudit(auditCtx, a.bus, events, a.store, a.adapter.Name(), a.log.With(logx.String("comp", "audit")))
		}()
	}

	rep, err := a.sched.Reconcile(a.sup.Context())
	if err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}
	if rep.Corrupt {
		a.log.Error("schedule record was corrupt and has been quarantined; pending lifts were lost",
			logx.String("quarantined_to", rep.QuarantinedTo))
	}

	if a.metrics != nil {
		if err := a.metrics.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
	}

	if err := a.adapter.Start(a.sup.Context(), a.disp); err != nil {
		return err
	}

	a.cron = cron.New()
	a.setStatusReport(a.cfgm.Get().Schedule.StatusReport)
	a.cron.Start()

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("platform", a.adapter.Name()),
		logx.Int("pending", a.sched.Len()),
		logx.Int("fired_on_start", rep.Fired),
	)
	return nil
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.SetChatTarget(logTarget(newCfg))
	a.logs.Apply(mapLogConfig(newCfg))
	applyLive(a.adapter, newCfg)
	if oldCfg == nil || oldCfg.Schedule.StatusReport != newCfg.Schedule.StatusReport {
		a.setStatusReport(newCfg.Schedule.StatusReport)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// setStatusReport replaces the cron job that logs the schedule status. An
// empty spec disables it.
func (a *App) setStatusReport(spec string) {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.cron == nil {
		return
	}
	if a.statusID != 0 {
		a.cron.Remove(a.statusID)
		a.statusID = 0
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return
	}
	id, err := a.cron.AddFunc(spec, a.reportStatus)
	if err != nil {
		a.log.Warn("invalid schedule.status_report; report disabled", logx.String("spec", spec), logx.Err(err))
		return
	}
	a.statusID = id
	a.log.Debug("status report scheduled", logx.String("spec", spec))
}

func (a *App) reportStatus() {
	fields := []logx.Field{logx.Int("pending", a.sched.Len())}
	if next, ok := a.sched.Next(); ok {
		fields = append(fields,
			logx.String("next_scope", next.ScopeID),
			logx.String("next_subject", next.SubjectID),
			logx.Time("next_due", next.DueAt),
		)
	}
	a.log.Info("schedule status", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.stopStep(ctx, name, max, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("cron", time.Second, func(c context.Context) error {
		a.cronMu.Lock()
		cr := a.cron
		a.cronMu.Unlock()
		if cr == nil {
			return nil
		}
		select {
		case <-cr.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	// No new commands once the adapter is down; lifts already firing still
	// reach the platform API.
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("schedule", 5*time.Second, a.sched.Stop)
	step("metrics", time.Second, func(c context.Context) error {
		if a.metrics == nil {
			return nil
		}
		return a.metrics.Stop(c)
	})
	// Every schedule event is published by now.
	step("audit", 2*time.Second, func(c context.Context) error {
		if a.auditCancel == nil {
			return nil
		}
		a.auditCancel()
		select {
		case <-a.auditDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// stopStep runs fn with an upper bound so one component can't stall the whole stop.
func (a *App) stopStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		return stepCtx.Err()
	}
}
