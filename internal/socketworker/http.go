// Package socketworker implements the per-connection state machine and
// the socket-worker loop that owns it (spec §4.2, §5) — the accept
// loop, connection table, response demultiplexer, and (WS variant)
// inactive-connection sweep. This file is the HTTP/1.1-over-TLS
// variant: ACCEPTED → TLS_HANDSHAKING is handled by tls.Listener;
// READING/DISPATCHED/WRITING/keep-alive is the explicit loop below,
// grounded on the teacher's connection-lifecycle shape in
// internal/server/handler.go (accept, read loop, write, decide
// keep-alive or close) generalized from a chunk-transfer protocol to
// the tracker's request/response cycle.
package socketworker

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/logging"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
	"github.com/swarmtrack/swarmtrack/internal/protocol/httpwire"
	"github.com/swarmtrack/swarmtrack/internal/ratelimit"
)

const (
	maxRequestBuffer = 8192
	readChunkSize    = 4096
)

// HTTPConfig is the subset of the HTTP binary's configuration the
// socket worker needs. Kept deliberately small and decoupled from
// internal/config so this package has no import-time dependency on
// YAML parsing.
type HTTPConfig struct {
	Address         string
	KeepAlive       bool
	ResponseTimeout time.Duration
	RequestWorkers  int
	InboxCapacity   int
}

// HTTPSocketWorker is one socket worker of the HTTP/TLS tracker
// endpoint (spec §2: "S socket workers").
type HTTPSocketWorker struct {
	index       int
	cfg         HTTPConfig
	tlsConfig   *tls.Config
	table       *connTable
	reqMesh     *mesh.Mesh[dispatch.RequestMessage]
	respMesh    *mesh.Mesh[dispatch.ResponseMessage]
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger

	// readyCounter is incremented once this worker's listener is bound,
	// the one process-wide datum spec §9 allows (startup synchronization).
	readyCounter *atomic.Int32

	// boundAddr, if set, receives the actual listen address once bound
	// — used by tests that bind to ":0" and need the assigned port.
	boundAddr chan<- string
}

// NewHTTPSocketWorker builds one HTTP socket worker. rateLimiter may
// be nil (rate limiting disabled).
func NewHTTPSocketWorker(index int, cfg HTTPConfig, tlsConfig *tls.Config, reqMesh *mesh.Mesh[dispatch.RequestMessage], respMesh *mesh.Mesh[dispatch.ResponseMessage], rateLimiter *ratelimit.Limiter, readyCounter *atomic.Int32, logger *slog.Logger) *HTTPSocketWorker {
	return &HTTPSocketWorker{
		index:        index,
		cfg:          cfg,
		tlsConfig:    tlsConfig,
		table:        newConnTable(),
		reqMesh:      reqMesh,
		respMesh:     respMesh,
		rateLimiter:  rateLimiter,
		readyCounter: readyCounter,
		logger:       logging.ForComponent(logger, "socket_worker", "transport", "http", "worker", index),
	}
}

// Serve binds the listener, starts the response demultiplexer, and
// accepts connections until stop is closed.
func (w *HTTPSocketWorker) Serve(stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", w.cfg.Address)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, w.tlsConfig)
	defer tlsLn.Close()

	if w.readyCounter != nil {
		w.readyCounter.Add(1)
	}
	if w.boundAddr != nil {
		w.boundAddr <- ln.Addr().String()
	}
	w.logger.Info("listening", "address", w.cfg.Address)

	go runDemultiplexer(stop, w.respMesh.Consumer(w.index), w.table, w.logger)

	go func() {
		<-stop
		tlsLn.Close()
	}()

	for {
		conn, err := tlsLn.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
			}
			w.logger.Warn("accept failed", "error", err)
			continue
		}
		go w.handleConnection(conn)
	}
}

func (w *HTTPSocketWorker) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	peerAddr := netConn.RemoteAddr().String()
	conn := newConnection(w.index, peerAddr, w.cfg.InboxCapacity)
	conn.closer = netConn
	id := w.table.reserve(conn)
	defer w.table.remove(id)

	if w.rateLimiter != nil {
		defer w.rateLimiter.Forget(peerAddr)
	}

	buf := make([]byte, 0, maxRequestBuffer)
	tmp := make([]byte, readChunkSize)

	for {
		req, consumed, perr := httpwire.ParseRequest(buf)
		switch {
		case errors.Is(perr, protocol.ErrNeedMoreData):
			n, rerr := netConn.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
			}
			if rerr != nil {
				if rerr != io.EOF {
					w.logger.Debug("connection read error", "connection_id", id, "error", rerr)
				}
				return // peer closed or fatal — graceful close, nothing in flight
			}
			continue

		case errors.Is(perr, protocol.ErrInvalid):
			conn.closeAfterWriting = true
			w.writeResponse(netConn, conn, &protocol.Response{
				Failure: &protocol.FailureResponse{FailureReason: "Invalid request"},
			})
			return

		case perr != nil:
			w.logger.Warn("unexpected parse error", "connection_id", id, "error", perr)
			return
		}

		buf = buf[consumed:]

		resp := w.process(conn, req)
		if !w.writeResponse(netConn, conn, resp) {
			return
		}

		if conn.closeAfterWriting || !w.cfg.KeepAlive {
			return
		}
	}
}

// process applies rate limiting, dispatches the request to the
// request-worker mesh, and gathers the response (spec §4.2, §4.3).
func (w *HTTPSocketWorker) process(conn *Connection, req *protocol.Request) *protocol.Response {
	if req.Announce != nil && w.rateLimiter != nil && !w.rateLimiter.Allow(conn.peerAddr) {
		return &protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "Rate limit exceeded"}}
	}

	immediate, err := dispatchRequest(conn, req, w.reqMesh, w.cfg.RequestWorkers, w.logger)
	if err != nil {
		return &protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "Invalid request"}}
	}
	if immediate != nil {
		return immediate
	}

	resp, err := awaitResponse(conn, w.cfg.ResponseTimeout)
	if err != nil {
		return &protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "Response timeout"}}
	}
	return resp
}

// writeResponse serializes and writes resp. Returns false if the
// write failed (caller must close the connection).
func (w *HTTPSocketWorker) writeResponse(netConn net.Conn, conn *Connection, resp *protocol.Response) bool {
	wire, err := httpwire.EncodeResponse(*resp)
	if err != nil {
		w.logger.Warn("failed to encode response", "connection_id", conn.id, "error", err)
		conn.closeAfterWriting = true
		return false
	}
	if _, err := netConn.Write(wire); err != nil {
		w.logger.Debug("write failed", "connection_id", conn.id, "error", err)
		return false
	}
	return true
}

// Connections reports the number of live connections, for tests and
// the stats reporter.
func (w *HTTPSocketWorker) Connections() int { return w.table.len() }
