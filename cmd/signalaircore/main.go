// signalaircore is a runnable host process wiring every core SignalAir
// component together behind a loopback transport, for local soak-testing
// and demos.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/signalair/mesh/internal/adminapi"
	"github.com/signalair/mesh/internal/config"
	"github.com/signalair/mesh/internal/cryptoprovider"
	"github.com/signalair/mesh/internal/meshnet"
	"github.com/signalair/mesh/internal/obsmetrics"
	"github.com/signalair/mesh/internal/transport/looptransport"
	appversion "github.com/signalair/mesh/internal/version"
	"github.com/signalair/mesh/internal/wire"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// demoBroadcastInterval is how often each simulated peer originates a
// synthetic chat message.
const demoBroadcastInterval = 3 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	demoPeers := flag.Int("demo-peers", 3, "number of simulated peers to join the loopback mesh")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("signalaircore starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("profile", cfg.Profile),
	)

	reg := prometheus.NewRegistry()
	collector := obsmetrics.NewCollector(reg)

	hub := looptransport.NewHub()
	selfID := wire.PeerID("core")
	crypto := cryptoprovider.NewChaCha20Poly1305()
	router, err := meshnet.New(cfg.Mesh.ToMeshConfig(), selfID, hub.Join(selfID),
		meshnet.WithLogger(logger), meshnet.WithMetrics(collector), meshnet.WithCryptoProvider(crypto))
	if err != nil {
		logger.Error("failed to construct mesh router", slog.String("error", err.Error()))
		return 1
	}
	router.OnReceive(func(msg wire.Message) {
		logger.Info("message received",
			slog.String("id", msg.ID.String()),
			slog.String("source", string(msg.SourceID)),
			slog.String("type", msg.Type.String()))
	})
	router.OnPeerConnected(func(peer wire.PeerID) {
		logger.Info("peer connected", slog.String("peer", string(peer)))
	})
	router.OnPeerDisconnected(func(peer wire.PeerID) {
		logger.Info("peer disconnected", slog.String("peer", string(peer)))
	})

	if err := runCore(cfg, router, hub, reg, logger, *configPath, logLevel, *demoPeers); err != nil {
		logger.Error("signalaircore exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("signalaircore stopped")
	return 0
}

// runCore wires the mesh router, admin API, metrics server, demo peer
// simulators, and signal handling behind an errgroup, mirroring the
// teacher's runServers shutdown sequencing.
func runCore(
	cfg *config.Config,
	router *meshnet.Router,
	hub *looptransport.Hub,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	demoPeerCount int,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	router.Start(gCtx)

	g.Go(func() error {
		logSecurityEvents(gCtx, router, logger)
		return nil
	})

	startDemoPeers(gCtx, g, hub, demoPeerCount, logger)

	admin := adminapi.New(router)
	g.Go(func() error {
		logger.Info("admin API listening", slog.String("addr", cfg.Admin.Addr))
		return admin.Run(gCtx, cfg.Admin.Addr)
	})

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	startSIGHUPHandler(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, router, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run core: %w", err)
	}
	return nil
}

// logSecurityEvents drains the router's observability stream to the
// structured logger until ctx is done.
func logSecurityEvents(ctx context.Context, router *meshnet.Router, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-router.Events():
			if !ok {
				return
			}
			logger.Log(ctx, levelForSeverity(ev.Severity), "security event",
				slog.String("kind", ev.Kind.String()),
				slog.String("peer", string(ev.Peer)),
				slog.String("detail", ev.Detail))
		}
	}
}

func levelForSeverity(sev meshnet.Severity) slog.Level {
	switch sev {
	case meshnet.SeverityCritical:
		return slog.LevelError
	case meshnet.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// startDemoPeers joins count additional loopback peers to the mesh, each
// running its own Router and periodically broadcasting a synthetic chat
// message, so the admin API and metrics have something to show in demo
// mode.
func startDemoPeers(ctx context.Context, g *errgroup.Group, hub *looptransport.Hub, count int, logger *slog.Logger) {
	for i := 0; i < count; i++ {
		id := wire.PeerID("demo-" + strconv.Itoa(i))
		r, err := meshnet.New(meshnet.DefaultConfig(), id, hub.Join(id), meshnet.WithLogger(logger))
		if err != nil {
			logger.Warn("failed to construct demo peer", slog.String("peer", string(id)), slog.String("error", err.Error()))
			continue
		}
		r.Start(ctx)

		g.Go(func() error {
			defer r.Stop()
			runDemoBroadcastLoop(ctx, r, id, logger)
			return nil
		})
	}
}

func runDemoBroadcastLoop(ctx context.Context, r *meshnet.Router, id wire.PeerID, logger *slog.Logger) {
	ticker := time.NewTicker(demoBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := []byte(fmt.Sprintf("hello from %s at %s", id, time.Now().UTC().Format(time.RFC3339)))
			if _, err := r.Broadcast(payload, wire.TypeChat); err != nil && !errors.Is(err, meshnet.ErrStopped) {
				logger.Warn("demo peer broadcast failed", slog.String("peer", string(id)), slog.String("error", err.Error()))
			}
		}
	}
}

// startSIGHUPHandler reloads the dynamic log level on SIGHUP. Mesh tunables
// (rate/ban/trust thresholds) are read once at startup by the Router's
// collaborators and are not safe to hot-swap without a broader locking
// change to internal/flood and internal/trust; a SIGHUP here only takes
// effect on the next restart for those, which is logged explicitly so an
// operator is not misled into thinking thresholds changed live.
func startSIGHUPHandler(ctx context.Context, g *errgroup.Group, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				reloadLogLevel(configPath, logLevel, logger)
			}
		}
	})
}

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
		slog.String("note", "mesh rate/ban/trust tunables require a restart to take effect"))
}

func gracefulShutdown(ctx context.Context, router *meshnet.Router, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	router.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(servers))
	for i, srv := range servers {
		wg.Add(1)
		go func(i int, srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs[i] = fmt.Errorf("shutdown server: %w", err)
			}
		}(i, srv)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
