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
// mesh. Fixed rather than configurable: it is an implementation detail
// of the backpressure posture (spec §6), not a tuning knob operators
// need.
const meshCapacity = 256

func main() {
	configPath := flag.String("config", "/etc/swarmtrack/tracker-http.yaml", "path to tracker-http config file")
	flag.Parse()

	cfg, err := config.LoadHTTPConfig(*configPath)
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

	socketWorkers := make([]*socketworker.HTTPSocketWorker, cfg.SocketWorkers)
	for i := range socketWorkers {
		sw := socketworker.NewHTTPSocketWorker(i, socketworker.HTTPConfig{
			Address:         cfg.Network.Address,
			KeepAlive:       cfg.Network.KeepAlive,
			ResponseTimeout: cfg.ResponseTimeout,
			RequestWorkers:  cfg.RequestWorkers,
			InboxCapacity:   meshCapacity,
		}, tlsConfig, reqMesh, respMesh, rateLimiter, nil, logger)
		socketWorkers[i] = sw

		wg.Add(1)
		go func(sw *socketworker.HTTPSocketWorker) {
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

	go runMaintenance(stop, requestWorkers, 2*time.Minute)
	go refreshCounters(stop, counters, requestWorkers, socketWorkers)

	logger.Info("tracker-http started",
		"socket_workers", cfg.SocketWorkers,
		"request_workers", cfg.RequestWorkers,
		"address", cfg.Network.Address)

	wg.Wait()
	reporter.Stop()
	logger.Info("tracker-http stopped")
}

// runMaintenance periodically sweeps stale peers out of every
// request worker's swarm table (spec's Non-goals exclude a full
// eviction policy, but an unbounded peer map is not acceptable even
// for the reference swarm implementation).
func runMaintenance(stop <-chan struct{}, workers []*swarm.Worker, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, w := range workers {
				w.Sweep(maxAge)
			}
		}
	}
}

// refreshCounters samples the request-worker and socket-worker pools
// into the stats reporter's Counters, which otherwise has no writer of
// its own — the reporter only ever reads what is handed to it.
func refreshCounters(stop <-chan struct{}, counters *statsreporter.Counters, requestWorkers []*swarm.Worker, socketWorkers []*socketworker.HTTPSocketWorker) {
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
