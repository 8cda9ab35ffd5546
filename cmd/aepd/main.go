// Command aepd runs the file-defined event scheduler daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"aep/internal/audit"
	"aep/internal/config"
	"aep/internal/engine"
	"aep/internal/eventbus"
	"aep/internal/script"
	"aep/internal/tool"
	"aep/internal/tool/builtin"
	"aep/internal/tool/mcp"
	"aep/pkg/logx"
)

func main() {
	var (
		cfgPath  string
		duration time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.DurationVar(&duration, "duration", 0, "run for a bounded duration then exit (0 = run until signalled)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, duration); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, duration time.Duration) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logx.New(cfg.Logx())
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	mgr.SetLogger(log)

	auditCfg, err := cfg.AuditSink()
	if err != nil {
		return err
	}
	sink, err := audit.Open(auditCfg, log)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	trail := audit.NewTrail(auditCfg.RingSize, sink, log)
	defer trail.Close()

	tools := tool.NewRegistry()
	builtin.RegisterMail(tools, log)
	if cfg.Tools.Telegram.Enabled() {
		builtin.RegisterTelegram(tools, cfg.TelegramTool(), log)
	}
	if cfg.Tools.Speedtest.Enabled {
		builtin.RegisterSpeedtest(tools, log)
	}
	if len(cfg.Tools.MCP) > 0 {
		bridge, err := mcp.Connect(ctx, tools, cfg.Tools.MCP, log)
		if err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer bridge.Close()
	}
	log.Info("tools registered", logx.Any("tools", tools.List()))

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	eng := engine.New(engCfg, engine.Deps{
		Tools:   tools,
		Scripts: script.NewRegistry(),
		Trail:   trail,
		Bus:     eventbus.New(),
		Log:     log,
	})
	if err := eng.Load(); err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	// Config edits trigger a rescan of the events root; structural changes
	// (logging, tools, audit driver) need a restart.
	go func() {
		if err := mgr.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		for range sub {
			log.Info("config changed, rescanning events")
			if err := eng.Reload(); err != nil {
				log.Warn("reload after config change failed", logx.Err(err))
			}
		}
	}()

	notify(log, daemon.SdNotifyReady)
	defer notify(log, daemon.SdNotifyStopping)
	stopWatchdog := startWatchdog(ctx, log)
	defer stopWatchdog()

	return eng.Run(ctx, duration)
}

func notify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	}
}

// startWatchdog pings systemd at half the configured watchdog interval.
// A no-op outside a systemd unit with WatchdogSec set.
func startWatchdog(ctx context.Context, log logx.Logger) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				notify(log, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() { close(done) }
}
