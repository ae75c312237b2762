package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/accesslist"
	"github.com/swarmtrack/swarmtrack/internal/config"
	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/logging"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/pki"
	"github.com/swarmtrack/swarmtrack/internal/ratelimit"
	"github.com/swarmtrack/swarmtrack/internal/socketworker"
	"github.com/swarmtrack/swarmtrack/internal/statsreporter"
	"github.com/swarmtrack/swarmtrack/internal/swarm"
)

// meshCapacity is the per-lane buffer size of the request/response
// mesh. Fixed rather than configurable, for the same reason as the
// HTTP binary: it is part of the backpressure posture, not an operator
// tuning knob.
const meshCapacity = 256

func main() {
	configPath := flag.String("config", "/etc/swarmtrack/tracker-ws.yaml", "path to tracker-ws config file")
	flag.Parse()

	cfg, err := config.LoadWSConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer logCloser.Close()

	tlsConfig, err := pki.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		logger.Error("loading TLS config", "error", err)
		os.Exit(1)
	}

	var rateLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.New(cfg.RateLimit.AnnouncesPerSecond, cfg.RateLimit.Burst)
	}

	accessMode, err := accesslist.ParseMode(cfg.AccessList.Mode)
	if err != nil {
		logger.Error("invalid access_list.mode", "error", err)
		os.Exit(1)
	}
	accessListPredicate, err := accesslist.New(accessMode, cfg.AccessList.HashList)
	if err != nil {
		logger.Error("building access list", "error", err)
		os.Exit(1)
	}

	reqMesh := mesh.New[dispatch.RequestMessage](cfg.SocketWorkers, cfg.RequestWorkers, meshCapacity)
	respMesh := mesh.New[dispatch.ResponseMessage](cfg.RequestWorkers, cfg.SocketWorkers, meshCapacity)

	stop := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		close(stop)
	}()

	var wg sync.WaitGroup

	requestWorkers := make([]*swarm.Worker, cfg.RequestWorkers)
	for i := range requestWorkers {
		rw := swarm.New(i, logger)
		requestWorkers[i] = rw
		wg.Add(1)
		go func(rw *swarm.Worker, idx int) {
			defer wg.Done()
			rw.Run(stop, reqMesh.Consumer(idx), respMesh)
		}(rw, i)
	}

	socketWorkers := make([]*socketworker.WSSocketWorker, cfg.SocketWorkers)
	for i := range socketWorkers {
		sw := socketworker.NewWSSocketWorker(i, socketworker.WSConfig{
			Address:                 cfg.Network.Address,
			ResponseTimeout:         cfg.ResponseTimeout,
			RequestWorkers:          cfg.RequestWorkers,
			InboxCapacity:           cfg.Network.PollEventCapacity,
			MaxConnectionAge:        cfg.Cleaning.MaxConnectionAge,
			WebsocketMaxMessageSize: cfg.Network.WebsocketMaxMessageSize,
		}, tlsConfig, reqMesh, respMesh, rateLimiter, accessListPredicate, nil, logger)
		socketWorkers[i] = sw

		wg.Add(1)
		go func(sw *socketworker.WSSocketWorker) {
			defer wg.Done()
			if err := sw.Serve(stop); err != nil {
				logger.Error("socket worker exited", "error", err)
			}
		}(sw)
	}

	counters := &statsreporter.Counters{}
	reporter, err := statsreporter.New(logger, counters, "*/30 * * * * *")
	if err != nil {
		logger.Error("building stats reporter", "error", err)
		os.Exit(1)
	}
	reporter.Start()

	go runMaintenance(stop, requestWorkers, cfg.Cleaning.MaxConnectionAge)
	go refreshCounters(stop, counters, requestWorkers, socketWorkers)

	logger.Info("tracker-ws started",
		"socket_workers", cfg.SocketWorkers,
		"request_workers", cfg.RequestWorkers,
		"address", cfg.Network.Address,
		"access_list_mode", accessListPredicate.Mode())

	wg.Wait()
	reporter.Stop()
	logger.Info("tracker-ws stopped")
}

// runMaintenance periodically sweeps stale peers out of every request
// worker's swarm table: once per maxAge (the configured max connection
// age), dropping peers not seen for twice that long.
func runMaintenance(stop <-chan struct{}, workers []*swarm.Worker, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, w := range workers {
				w.Sweep(maxAge * 2)
			}
		}
	}
}

// refreshCounters samples the request-worker and socket-worker pools
// into the stats reporter's Counters, which otherwise has no writer of
// its own — the reporter only ever reads what is handed to it.
func refreshCounters(stop <-chan struct{}, counters *statsreporter.Counters, requestWorkers []*swarm.Worker, socketWorkers []*socketworker.WSSocketWorker) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var announces, scrapes, conns int64
			for _, w := range requestWorkers {
				a, s := w.Stats()
				announces += a
				scrapes += s
			}
			for _, sw := range socketWorkers {
				conns += int64(sw.Connections())
			}
			atomic.StoreInt64(&counters.AnnouncesTotal, announces)
			atomic.StoreInt64(&counters.ScrapesTotal, scrapes)
			atomic.StoreInt64(&counters.ConnectionsOpen, conns)
		}
	}
}
