package workerside

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
)

// EndpointEnvVar is the environment variable the pool passes the
// transport address through before launching the child editor.
const EndpointEnvVar = "CHILD_TRANSPORT_ADDR"

// DebugEnvVar, when set to a non-blank value, makes Run log one info
// record that debug mode is enabled, to the configured logger. No other
// lifecycle events are mirrored, and nothing is written to stderr
// directly.
const DebugEnvVar = "POOL_DEBUG"

// readyAckTimeout bounds how long Run waits for ready_ack after sending
// ready.
const readyAckTimeout = 5 * time.Second

// Config is the worker-side environment, populated via internal/config
// the same way pool.Config is on the controller side.
type Config struct {
	TransportAddr string `env:"CHILD_TRANSPORT_ADDR"`
	Debug         bool   `env:"POOL_DEBUG" envDefault:"false"`
}

// Runtime is the worker-side connection state: the client socket, its
// RPC-channel fan-out, the ordered command queue serving pool requests,
// and the installed TestRunnerHost.
type Runtime struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	rpcEvents *scoped.Broadcaster[any]
	queue     *commandQueue
	host      TestRunnerHost
	teardown  func(context.Context) error
	log       *slog.Logger

	handshakeMu sync.Mutex
	handshaking bool
	handshakeID string
	readyAck    *scoped.Future[struct{}]

	runDone    *scoped.Future[struct{}]
	shutdownMu sync.Mutex
	shutdown   bool
	readLoopWG sync.WaitGroup

	workerModulePath string
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	log        *slog.Logger
	queueDepth int
}

// WithLogger overrides the runtime's logger. Defaults to a discard
// logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *runConfig) { c.log = log }
}

// WithQueueDepth overrides the command queue's buffer size. Defaults to
// 16; the buffer only bounds how many requests may be admitted ahead of
// processing, never the FIFO order they're served in.
func WithQueueDepth(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// Run is the worker-side runtime's single entry point: it reads the pool
// endpoint from the environment, dials it, completes the ready
// handshake, installs host via the WorkerHost bridge, and serves control
// requests until a shutdown request is processed or the pool
// disconnects. It blocks until the session ends.
func Run(ctx context.Context, host TestRunnerHost, opts ...Option) error {
	cfg := runConfig{log: logger.Discard(), queueDepth: 16}
	for _, opt := range opts {
		opt(&cfg)
	}

	addr := strings.TrimSpace(os.Getenv(EndpointEnvVar))
	if addr == "" {
		return ErrMissingEndpoint
	}
	if strings.TrimSpace(os.Getenv(DebugEnvVar)) != "" {
		cfg.log.Info("worker debug mode enabled")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("workerside: dial %s: %w", addr, err)
	}

	workerModulePath, err := resolveSiblingModulePath("vscode-worker")
	if err != nil {
		_ = conn.Close()
		return err
	}

	rt := &Runtime{
		conn:             conn,
		rpcEvents:        scoped.NewBroadcaster[any](),
		host:             host,
		log:              cfg.log,
		runDone:          scoped.NewFuture[struct{}](),
		workerModulePath: workerModulePath,
	}
	rt.queue = newCommandQueue(cfg.queueDepth, rt.handleControlRequest)

	rt.readLoopWG.Add(1)
	go rt.readLoop()

	if err := rt.handshake(ctx); err != nil {
		_ = conn.Close()
		rt.queue.Close()
		rt.readLoopWG.Wait()
		return err
	}

	teardown, err := host.Setup(ctx, &WorkerHost{rt: rt})
	if err != nil {
		_ = conn.Close()
		rt.queue.Close()
		rt.readLoopWG.Wait()
		return fmt.Errorf("workerside: host setup: %w", err)
	}
	rt.teardown = teardown

	_, runErr := rt.runDone.Await()

	rt.queue.Close()
	rt.readLoopWG.Wait()
	if rt.teardown != nil {
		_ = rt.teardown(context.Background())
	}
	return runErr
}

// handshake sends a fresh ready request and blocks until readLoop
// observes the matching ready_ack or readyAckTimeout elapses.
func (rt *Runtime) handshake(ctx context.Context) error {
	id := uuid.NewString()

	rt.handshakeMu.Lock()
	rt.handshaking = true
	rt.handshakeID = id
	rt.readyAck = scoped.NewFuture[struct{}]()
	ack := rt.readyAck
	rt.handshakeMu.Unlock()

	defer func() {
		rt.handshakeMu.Lock()
		rt.handshaking = false
		rt.handshakeMu.Unlock()
	}()

	frame, err := envelope.Encode(envelope.Control, envelope.ControlRequest{ID: id, Action: envelope.ActionReady})
	if err != nil {
		return fmt.Errorf("workerside: encode ready: %w", err)
	}
	rt.writeFrame(frame)

	select {
	case <-ack.Done():
		return nil
	case <-time.After(readyAckTimeout):
		return ErrReadyAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop is the Runtime's sole reader of the socket. Every decoded
// control-channel request is either the handshake's ready_ack (consumed
// directly) or a run/collect/shutdown request (handed to the ordered
// command queue); every rpc-channel payload is published to subscribers.
func (rt *Runtime) readLoop() {
	defer rt.readLoopWG.Done()
	defer rt.onPeerClosed()

	for {
		_, data, err := rt.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Decode(data)
		if err != nil {
			rt.log.Warn("malformed envelope ignored", logger.Error(err))
			continue
		}

		switch env.Channel {
		case envelope.RPC:
			rt.rpcEvents.Publish(env.Payload)
		case envelope.Control:
			rt.handleControlInbound(env.Payload)
		default:
			rt.log.Warn("unknown channel ignored", logger.Channel(string(env.Channel)))
		}
	}
}

func (rt *Runtime) handleControlInbound(payload any) {
	req, ok := envelope.AsControlRequest(payload)
	if !ok {
		rt.log.Warn("control payload is not a request shape")
		return
	}

	if req.Action == envelope.ActionReadyAck {
		rt.handshakeMu.Lock()
		waiting := rt.handshaking && rt.handshakeID == req.ID
		ack := rt.readyAck
		rt.handshakeMu.Unlock()
		if waiting && ack != nil && !ack.IsSettled() {
			ack.Resolve(struct{}{})
		}
		return
	}

	// Enqueue with a background context: queue capacity, not caller
	// cancellation, is the only thing that should block the read loop
	// here, so frames keep draining off the socket while a long-running
	// run/collect is in flight.
	if err := rt.queue.Enqueue(context.Background(), req); err != nil {
		rt.log.Error("enqueue control request failed", logger.RequestID(req.ID), logger.Error(err))
	}
}

// handleControlRequest is the command queue's single-concurrency
// handler: run/collect validate ctx, delegate to the installed host, and
// reply; shutdown replies then resolves runDone.
func (rt *Runtime) handleControlRequest(req envelope.ControlRequest) {
	switch req.Action {
	case envelope.ActionRun, envelope.ActionCollect:
		rt.serveRunOrCollect(req)
	case envelope.ActionShutdown:
		rt.serveShutdown(req)
	default:
		rt.replyError(req.ID, fmt.Sprintf("unsupported action %q", req.Action))
	}
}

func (rt *Runtime) serveRunOrCollect(req envelope.ControlRequest) {
	if req.Ctx == nil {
		rt.replyError(req.ID, fmt.Sprintf("%s requires ctx", req.Action))
		return
	}

	ctx := context.Background()
	var err error
	if req.Action == envelope.ActionRun {
		err = rt.host.RunTests(ctx, *req.Ctx)
	} else {
		err = rt.host.CollectTests(ctx, *req.Ctx)
	}

	if err != nil {
		rt.replyError(req.ID, err.Error())
		return
	}
	rt.replySuccess(req.ID)
}

func (rt *Runtime) serveShutdown(req envelope.ControlRequest) {
	rt.replySuccess(req.ID)

	rt.shutdownMu.Lock()
	rt.shutdown = true
	rt.shutdownMu.Unlock()

	_ = rt.conn.Close()
	if !rt.runDone.IsSettled() {
		rt.runDone.Resolve(struct{}{})
	}
}

// onPeerClosed runs whenever the socket read loop exits. If a shutdown
// request has already been served, the top-level Run call resolves
// cleanly; otherwise it rejects with ErrPoolDisconnected.
func (rt *Runtime) onPeerClosed() {
	rt.shutdownMu.Lock()
	shuttingDown := rt.shutdown
	rt.shutdownMu.Unlock()

	if rt.runDone.IsSettled() {
		return
	}
	if shuttingDown {
		rt.runDone.Resolve(struct{}{})
		return
	}
	rt.runDone.Reject(ErrPoolDisconnected)
}

func (rt *Runtime) replySuccess(id string) {
	rt.writeResponse(envelope.ControlResponse{ID: id, Success: true})
}

func (rt *Runtime) replyError(id, msg string) {
	rt.writeResponse(envelope.ControlResponse{ID: id, Success: false, Error: msg})
}

func (rt *Runtime) writeResponse(resp envelope.ControlResponse) {
	frame, err := envelope.Encode(envelope.Control, resp)
	if err != nil {
		rt.log.Error("encode control response failed", logger.Error(err))
		return
	}
	rt.writeFrame(frame)
}

func (rt *Runtime) writeFrame(frame string) {
	rt.writeMu.Lock()
	defer rt.writeMu.Unlock()
	if err := rt.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		rt.log.Error("transport write failed", logger.Error(err))
	}
}

// publishRPC wraps msg into an rpc-channel envelope and sends it to the
// pool, used by WorkerHost.Post.
func (rt *Runtime) publishRPC(msg any) error {
	frame, err := envelope.Encode(envelope.RPC, msg)
	if err != nil {
		return fmt.Errorf("workerside: encode rpc payload: %w", err)
	}
	rt.writeFrame(frame)
	return nil
}
