package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"remindme/internal/config"
	appLog "remindme/internal/log"
	"remindme/internal/notify"
	"remindme/internal/notify/push"
	"remindme/internal/store"
	"remindme/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("remindme starting", "version", "0.1.0-dev")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc := time.Local
	if conf.Timezone != "" {
		loc, err = time.LoadLocation(conf.Timezone)
		if err != nil {
			appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
			loc = time.Local
		}
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"data_dir", conf.DataDir,
		"resync", conf.ResyncCron,
		"offset_minutes", conf.OffsetMinutes,
		"alarm_horizon", conf.AlarmHorizonCount,
		"webpush", conf.WebPush != nil,
		"once", flags.once,
	)

	st, err := store.New(conf.DataDir)
	if err != nil {
		appLog.Error("failed to open data directory", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	dispatcher := buildDispatcher(ctx, conf, st)
	coord := notify.NewCoordinator(dispatcher, conf.AlarmHorizonCount)
	coord.SetClock(func() time.Time { return time.Now().In(loc) })

	srv := web.NewServer(conf, st, coord, loc)

	// Reminders from a previous process are gone with it; derive everything
	// fresh at boot.
	if err := srv.ResyncAll(ctx); err != nil {
		appLog.Error("initial resync failed", err)
	}
	if flags.once {
		appLog.Info("single resync completed, exiting")
		return
	}

	// Periodic sweep keeps the discrete alarm horizon rolling forward.
	c := cron.New()
	if _, err := c.AddFunc(conf.ResyncCron, func() {
		if err := srv.ResyncAll(ctx); err != nil {
			appLog.Error("scheduled resync failed", err)
		}
	}); err != nil {
		appLog.Error("invalid resync cron spec", err, "spec", conf.ResyncCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: srv.Handler(),
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	appLog.Info("remindme exiting")
}

// buildDispatcher picks the notification backend: web push when VAPID
// credentials are configured, otherwise the no-op dispatcher.
func buildDispatcher(ctx context.Context, conf *config.Config, st *store.Store) notify.Dispatcher {
	if conf.WebPush == nil {
		appLog.Info("webpush not configured, reminders will not be delivered")
		return notify.NoopDispatcher{}
	}
	sender, err := push.NewSender(conf.WebPush.PublicKey, conf.WebPush.PrivateKey, conf.WebPush.Contact)
	if err != nil {
		appLog.Error("webpush misconfigured, falling back to no-op dispatcher", err)
		return notify.NoopDispatcher{}
	}
	d := push.NewDispatcher(sender, storeTargets{st})
	d.Start(ctx)
	return d
}

// storeTargets adapts the store's subscription records to push targets.
type storeTargets struct {
	st *store.Store
}

func (s storeTargets) ActiveSubscriptions() ([]push.Target, error) {
	subs, err := s.st.Subscriptions()
	if err != nil {
		return nil, err
	}
	out := make([]push.Target, 0, len(subs))
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		out = append(out, push.Target{Endpoint: sub.Endpoint, Keys: sub.Keys})
	}
	return out, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/remindme/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one resync pass and exit")

	flag.Parse()

	return cfg
}
