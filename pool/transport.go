package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// transportServer binds a loopback, ephemeral-port listener and accepts
// at most one client connection; a second accepted socket during the
// same session is a protocol error.
type transportServer struct {
	mu          sync.Mutex
	hasAccepted bool
	listener    net.Listener
	httpSrv     *http.Server
	upgrader    websocket.Upgrader
	accepted    chan *websocket.Conn
	rejected    chan struct{}
	closeOnce   sync.Once
}

// newTransportServer binds 127.0.0.1:0 and starts serving upgrade
// requests in the background. Returns ErrTransportBindFailed if the bind
// fails.
func newTransportServer(log *slog.Logger) (*transportServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportBindFailed, err)
	}

	ts := &transportServer{
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		accepted: make(chan *websocket.Conn, 1),
		rejected: make(chan struct{}, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ts.handleUpgrade)
	ts.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := ts.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("transport serve error", "error", err)
		}
	}()

	return ts, nil
}

// Addr returns the bound loopback address, e.g. "127.0.0.1:54213".
func (ts *transportServer) Addr() string {
	return ts.listener.Addr().String()
}

func (ts *transportServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ts.mu.Lock()
	first := !ts.hasAccepted
	ts.hasAccepted = true
	ts.mu.Unlock()

	if !first {
		// A client already connected this session; a second one is a
		// protocol error, rejected outright rather than left unread in
		// a buffered channel once Accept has already drained the first.
		_ = conn.Close()
		select {
		case ts.rejected <- struct{}{}:
		default:
		}
		return
	}

	ts.accepted <- conn
}

// Accept blocks until the single tolerated client connects, the context
// is canceled, or a conflicting second connection was rejected.
func (ts *transportServer) Accept(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-ts.accepted:
		return conn, nil
	case <-ts.rejected:
		return nil, ErrAcceptConflict
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the listener and HTTP server. Safe to call more than
// once.
func (ts *transportServer) Close() error {
	var err error
	ts.closeOnce.Do(func() {
		err = ts.httpSrv.Close()
	})
	return err
}
