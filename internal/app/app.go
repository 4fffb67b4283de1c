// Package app assembles and runs the relay: config, logging, tracking
// source, chat directory, pipeline, webhook server and background upkeep.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shotrelay/internal/adapters/shotgrid"
	"shotrelay/internal/adapters/slackdir"
	"shotrelay/internal/adapters/telegramdir"
	"shotrelay/internal/config"
	"shotrelay/internal/directory"
	"shotrelay/internal/eventbus"
	"shotrelay/internal/journal"
	"shotrelay/internal/relay"
	"shotrelay/internal/transport/webhook"
	logx "shotrelay/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	src      *shotgrid.Client
	dir      *directory.Cached
	tgdir    *telegramdir.Directory // set only for the telegram backend
	throttle *relay.Throttle
	svc      *relay.Service
	web      *webhook.Server
	jour     *journal.Journal
	crond    *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	bus := eventbus.New()

	trackTimeout, err := config.ParseDurationOrDefault("tracking.timeout", cfg.Tracking.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	src, err := shotgrid.New(shotgrid.Config{
		BaseURL:    cfg.Tracking.BaseURL,
		ScriptName: cfg.Tracking.ScriptName,
		APIKey:     cfg.Tracking.APIKey,
		Timeout:    trackTimeout,
	}, logSvc.Logger().With(logx.String("comp", "tracking")))
	if err != nil {
		return nil, err
	}

	backend, tgdir, err := buildDirectory(cfg, logSvc)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := config.ParseDurationOrDefault("chat.cache_ttl", cfg.Chat.CacheTTL, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	dir := directory.NewCached(backend, cacheTTL, cfg.Chat.CacheMaxEntries)

	throttle, err := buildThrottle(cfg)
	if err != nil {
		return nil, err
	}
	coord := relay.NewCoordinator(dir, throttle,
		logSvc.Logger().With(logx.String("comp", "deliver")), bus)
	if sendTimeout, err := config.ParseDurationField("relay.send_timeout", cfg.Relay.SendTimeout); err != nil {
		return nil, err
	} else {
		coord.SetSendTimeout(sendTimeout)
	}

	attachDelay, err := config.ParseDurationOrDefault("relay.attachment_delay", cfg.Relay.AttachmentDelay, 3*time.Second)
	if err != nil {
		return nil, err
	}
	svc := relay.NewService(src, dir, coord,
		logSvc.Logger().With(logx.String("comp", "relay")), bus,
		relay.Options{AttachmentDelay: attachDelay})

	webCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	web := webhook.New(webCfg, svc, logSvc.Logger().With(logx.String("comp", "webhook")))

	jour, err := buildJournal(cfg, logSvc)
	if err != nil {
		return nil, err
	}

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		src:      src,
		dir:      dir,
		tgdir:    tgdir,
		throttle: throttle,
		svc:      svc,
		web:      web,
		jour:     jour,
		crond:    cron.New(),
	}, nil
}

func buildDirectory(cfg *config.Config, logs *logx.Service) (directory.Directory, *telegramdir.Directory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Chat.Backend)) {
	case "slack":
		d, err := slackdir.New(slackdir.Config{Token: cfg.Chat.Slack.Token},
			logs.Logger().With(logx.String("comp", "slack")))
		return d, nil, err
	case "telegram":
		d, err := telegramdir.New(telegramdir.Config{
			Token:  cfg.Chat.Telegram.Token,
			Roster: cfg.Chat.Telegram.Roster,
		}, logs.Logger().With(logx.String("comp", "telegram")))
		return d, d, err
	default:
		return nil, nil, fmt.Errorf("unknown chat backend %q", cfg.Chat.Backend)
	}
}

func buildThrottle(cfg *config.Config) (*relay.Throttle, error) {
	period, err := config.ParseDurationOrDefault("relay.period", cfg.Relay.Period, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return relay.NewThrottle(cfg.Relay.MaxCalls, period), nil
}

func buildJournal(cfg *config.Config, logs *logx.Service) (*journal.Journal, error) {
	if cfg.Journal == nil {
		return nil, nil
	}
	retention, err := config.ParseDurationField("journal.retention", cfg.Journal.Retention)
	if err != nil {
		return nil, err
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return journal.Open(journal.Config{
		Path:        cfg.Journal.Path,
		Retention:   retention,
		BusyTimeout: busy,
	}, logs.Logger().With(logx.String("comp", "journal")))
}

func mapHTTPConfig(cfg *config.Config) (webhook.Config, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return webhook.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second)
	if err != nil {
		return webhook.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", cfg.HTTP.IdleTimeout, time.Minute)
	if err != nil {
		return webhook.Config{}, err
	}
	return webhook.Config{
		Addr:              cfg.HTTP.Addr,
		Path:              cfg.HTTP.Path,
		ReadTimeout:       read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
		RequestsPerSecond: cfg.HTTP.RequestsPerSec,
		Burst:             cfg.HTTP.Burst,
	}, nil
}

// Start brings the relay up and returns once the webhook server is
// listening. Background loops run until Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.web.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	if a.jour != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.jour.Attach(runCtx, a.bus)
		}()
	}

	a.scheduleUpkeep(runCtx)
	a.crond.Start()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.log.Info("relay started", logx.String("addr", a.web.Addr()))
	return nil
}

func (a *App) scheduleUpkeep(ctx context.Context) {
	// Identity cache sheds expired entries off the hot path.
	_, _ = a.crond.AddFunc("@every 10m", func() {
		if n := a.dir.Prune(); n > 0 {
			a.log.Debug("identity cache pruned", logx.Int("evicted", n))
		}
	})
	if a.jour != nil {
		_, _ = a.crond.AddFunc("17 3 * * *", func() {
			n, err := a.jour.Prune(ctx)
			if err != nil {
				a.log.Error("journal prune failed", logx.Err(err))
				return
			}
			if n > 0 {
				a.log.Info("journal pruned", logx.Int64("rows", n))
			}
		})
	}
}

// reloadLoop applies accepted config reloads to the running components.
// Tracking credentials and the HTTP bind address need a restart; everything
// else applies live.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyReload(cfg)
		}
	}
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if period, err := config.ParseDurationOrDefault("relay.period", cfg.Relay.Period, 10*time.Second); err == nil {
		a.throttle.Configure(cfg.Relay.MaxCalls, period)
	}

	if webCfg, err := mapHTTPConfig(cfg); err == nil {
		a.web.Reconfigure(webCfg)
	}

	if a.tgdir != nil {
		a.tgdir.SetRoster(cfg.Chat.Telegram.Roster)
	}

	a.log.Info("reload applied",
		logx.String("log_level", cfg.Logging.Level),
		logx.Int("max_calls", cfg.Relay.MaxCalls))
}

// Stop shuts the relay down: no new requests, then background loops, then
// the journal.
func (a *App) Stop(ctx context.Context) error {
	err := a.web.Stop(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	cronCtx := a.crond.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}
	a.wg.Wait()

	if cerr := a.jour.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return err
}
