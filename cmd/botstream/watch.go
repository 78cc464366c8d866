package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/botdesk/botstream/internal/auth"
	"github.com/botdesk/botstream/internal/config"
	"github.com/botdesk/botstream/internal/connection"
	"github.com/botdesk/botstream/internal/dispatch"
	"github.com/botdesk/botstream/internal/metrics"
	"github.com/botdesk/botstream/internal/model"
	"github.com/botdesk/botstream/internal/version"
)

// errGaveUp is returned by watch when the reconnect budget runs out.
var errGaveUp = errors.New("reconnect attempts exhausted")

const statsInterval = 30 * time.Second

func runWatch(ctx context.Context, opts watchOptions, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, stderr)
	logger.Info("starting botstream", "version", version.Get().Version)

	creds, err := auth.LoadCredentials(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("using bearer token", "source", creds.Source, "token", creds.Redacted())

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// Closed once the Manager settles in idle without being asked to.
	gaveUp := make(chan struct{})
	var gaveUpOnce sync.Once

	mgrCfg := cfg.ManagerConfig()
	mgrCfg.OnStateChange = func(from, to connection.State) {
		logger.Info("connection state", "from", from, "to", to)
		m.ObserveTransition(from, to)
		if to == connection.StateIdle && from != connection.StateClosing {
			gaveUpOnce.Do(func() { close(gaveUp) })
		}
	}

	wsCfg := cfg.WebsocketConfig()
	wsCfg.UserAgent = version.UserAgent()

	registry := dispatch.NewRegistry(logger.With("component", "dispatch"))
	mgr := connection.NewManager(
		mgrCfg,
		connection.NewWebsocketDialer(wsCfg, logger.With("component", "websocket")),
		registry,
		logger.With("component", "connection"),
	)
	promReg.MustRegister(metrics.NewCollector(mgr, registry))

	// Widgets
	feed := dispatch.NewBuffered(64, cfg.Dispatch.WidgetBufferSize)
	if opts.botID != "" {
		mgr.Subscribe(dispatch.ByBot(opts.botID, feed))
	} else {
		mgr.Subscribe(feed)
	}
	tally := newUpdateTally()
	mgr.Subscribe(dispatch.ByType(model.TypeBotUpdate, tally))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		printMessages(gctx, feed, stdout, opts.verbose)
		return nil
	})

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(metrics.ServerConfig{
			Addr: net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port)),
			Path: cfg.Metrics.Path,
		}, promReg, logger.With("component", "metrics"))
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logStats(logger, mgr.Stats(), registry.Stats(), feed.Stats(), tally.snapshot())
			}
		}
	})

	if err := mgr.Connect(creds.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("shutting down")
			mgr.Disconnect()
			feed.Close()
			return nil
		case <-gaveUp:
			feed.Close()
			return errGaveUp
		}
	})

	err = g.Wait()
	mgr.Disconnect()
	logStats(logger, mgr.Stats(), registry.Stats(), feed.Stats(), tally.snapshot())
	return err
}

// loadConfig reads the config file, or defaults when none is given, and
// applies flag overrides.
func loadConfig(opts watchOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadWithDefaults(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.url != "" {
		cfg.API.WSURL = opts.url
	}
	if opts.token != "" {
		cfg.Auth.Token = opts.token
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if opts.metrics {
		cfg.Metrics.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func logStats(logger *slog.Logger, conn connection.ManagerStats, disp dispatch.Stats, feed dispatch.InboxStats, updates map[string]int64) {
	logger.Info("stats",
		"state", conn.State,
		"attempts", conn.Attempts,
		"dials", conn.Dials,
		"reconnects", conn.Reconnects,
		"frames", conn.FramesReceived,
		"decode_failures", conn.DecodeFailures,
		"dispatched", disp.Dispatched,
		"handler_panics", disp.HandlerPanics,
		"feed_queued", feed.Count,
		"feed_dropped", feed.Dropped,
		"updates", updates,
	)
}
