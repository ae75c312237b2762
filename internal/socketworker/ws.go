// This file is the WebSocket/TLS variant of the socket worker (spec
// §4.2's WS_HANDSHAKING insertion; READING/WRITING interleaved
// per-message rather than per-request). It uses net/http plus
// gorilla/websocket for the accept/TLS/upgrade sequence — the
// ecosystem's documented way to run a WS server — while the
// connection table, dispatch, response gathering, and demultiplexer
// are shared with the HTTP variant.
package socketworker

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swarmtrack/swarmtrack/internal/accesslist"
	"github.com/swarmtrack/swarmtrack/internal/dispatch"
	"github.com/swarmtrack/swarmtrack/internal/logging"
	"github.com/swarmtrack/swarmtrack/internal/mesh"
	"github.com/swarmtrack/swarmtrack/internal/protocol"
	"github.com/swarmtrack/swarmtrack/internal/protocol/wswire"
	"github.com/swarmtrack/swarmtrack/internal/ratelimit"
)

// WSConfig is the subset of the WS binary's configuration the socket
// worker needs.
type WSConfig struct {
	Address                 string
	ResponseTimeout         time.Duration
	RequestWorkers          int
	InboxCapacity           int
	MaxConnectionAge        time.Duration
	WebsocketMaxMessageSize int64
}

// WSSocketWorker is one socket worker of the WebSocket/TLS tracker
// endpoint.
type WSSocketWorker struct {
	index       int
	cfg         WSConfig
	tlsConfig   *tls.Config
	table       *connTable
	reqMesh     *mesh.Mesh[dispatch.RequestMessage]
	respMesh    *mesh.Mesh[dispatch.ResponseMessage]
	rateLimiter *ratelimit.Limiter
	accessList  *accesslist.List
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	readyCounter *atomic.Int32

	// boundAddr, if set, receives the actual listen address once bound
	// — used by tests that bind to ":0" and need the assigned port.
	boundAddr chan<- string
}

// NewWSSocketWorker builds one WS socket worker. rateLimiter and
// accessList may be nil (both features default to permissive).
func NewWSSocketWorker(index int, cfg WSConfig, tlsConfig *tls.Config, reqMesh *mesh.Mesh[dispatch.RequestMessage], respMesh *mesh.Mesh[dispatch.ResponseMessage], rateLimiter *ratelimit.Limiter, accessList *accesslist.List, readyCounter *atomic.Int32, logger *slog.Logger) *WSSocketWorker {
	return &WSSocketWorker{
		index:        index,
		cfg:          cfg,
		tlsConfig:    tlsConfig,
		table:        newConnTable(),
		reqMesh:      reqMesh,
		respMesh:     respMesh,
		rateLimiter:  rateLimiter,
		accessList:   accessList,
		upgrader:     websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		readyCounter: readyCounter,
		logger:       logging.ForComponent(logger, "socket_worker", "transport", "ws", "worker", index),
	}
}

// Serve binds the listener, starts the response demultiplexer and the
// inactive-connection sweep, and serves WS upgrades until stop is
// closed.
func (w *WSSocketWorker) Serve(stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", w.cfg.Address)
	if err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, w.tlsConfig)

	if w.readyCounter != nil {
		w.readyCounter.Add(1)
	}
	if w.boundAddr != nil {
		w.boundAddr <- ln.Addr().String()
	}
	w.logger.Info("listening", "address", w.cfg.Address)

	go runDemultiplexer(stop, w.respMesh.Consumer(w.index), w.table, w.logger)
	go w.runSweep(stop)

	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handleUpgrade)
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(tlsLn) }()

	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (w *WSSocketWorker) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	wsConn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("ws upgrade failed", "error", err)
		return
	}
	wsConn.SetReadLimit(w.cfg.WebsocketMaxMessageSize)

	peerAddr := wsConn.RemoteAddr().String()
	conn := newConnection(w.index, peerAddr, w.cfg.InboxCapacity)
	conn.touch(w.cfg.MaxConnectionAge)
	conn.closer = wsConn
	id := w.table.reserve(conn)

	defer func() {
		w.table.remove(id)
		wsConn.Close()
		if w.rateLimiter != nil {
			w.rateLimiter.Forget(peerAddr)
		}
	}()

	w.readLoop(wsConn, conn)
}

func (w *WSSocketWorker) readLoop(wsConn *websocket.Conn, conn *Connection) {
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			w.logger.Debug("ws read ended", "connection_id", conn.id, "error", err)
			return
		}
		conn.touch(w.cfg.MaxConnectionAge)

		req, err := wswire.DecodeMessage(data)
		if err != nil {
			w.writeMessage(wsConn, conn, &protocol.Response{
				Failure: &protocol.FailureResponse{FailureReason: "Error parsing message"},
			})
			continue
		}

		if req.Announce != nil && w.accessList != nil && !w.accessList.Allows(req.Announce.InfoHash) {
			h := req.Announce.InfoHash
			w.writeMessage(wsConn, conn, &protocol.Response{
				Failure: &protocol.FailureResponse{
					FailureReason: "Info hash not allowed",
					Action:        "announce",
					InfoHash:      &h,
				},
			})
			continue
		}

		if req.Announce != nil && w.rateLimiter != nil && !w.rateLimiter.Allow(conn.peerAddr) {
			w.writeMessage(wsConn, conn, &protocol.Response{
				Failure: &protocol.FailureResponse{FailureReason: "Rate limit exceeded", Action: "announce"},
			})
			continue
		}

		immediate, derr := dispatchRequest(conn, req, w.reqMesh, w.cfg.RequestWorkers, w.logger)
		if derr != nil {
			w.writeMessage(wsConn, conn, &protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "Invalid request"}})
			continue
		}
		if immediate != nil {
			w.writeMessage(wsConn, conn, immediate)
			continue
		}

		resp, werr := awaitResponse(conn, w.cfg.ResponseTimeout)
		if werr != nil {
			w.writeMessage(wsConn, conn, &protocol.Response{Failure: &protocol.FailureResponse{FailureReason: "Response timeout"}})
			continue
		}
		if !w.writeMessage(wsConn, conn, resp) {
			return
		}
	}
}

func (w *WSSocketWorker) writeMessage(wsConn *websocket.Conn, conn *Connection, resp *protocol.Response) bool {
	wire, err := wswire.EncodeMessage(*resp)
	if err != nil {
		w.logger.Warn("failed to encode ws message", "connection_id", conn.id, "error", err)
		return true
	}
	if err := wsConn.WriteMessage(websocket.TextMessage, wire); err != nil {
		w.logger.Debug("ws write failed", "connection_id", conn.id, "error", err)
		return false
	}
	return true
}

// runSweep evicts connections past their valid_until deadline on a
// fixed ticker of a quarter of MaxConnectionAge. The original event
// loop swept every 128 poll iterations (spec §4.5); Go's goroutine-per-
// connection model has no "poll iteration" of its own, so this
// translates the cadence into a fixed ticker instead — the amortized-
// frequency, unbounded-per-call-work property spec §4.5 describes is
// preserved; only the unit of "128 iterations" changes from an event-
// loop tick to a wall-clock tick.
func (w *WSSocketWorker) runSweep(stop <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.MaxConnectionAge / 4)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, c := range w.table.snapshot() {
				if c.expired() {
					w.table.remove(c.id)
					if c.closer != nil {
						c.closer.Close()
					}
				}
			}
		}
	}
}

// Connections reports the number of live connections, for tests and
// the stats reporter.
func (w *WSSocketWorker) Connections() int { return w.table.len() }
