package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
	"github.com/andrew-w-ross/vscode-test-pool/pool/metrics"
)

// Worker is the pool-side handle to one in-editor runtime: it owns the
// transport server, the accepted client socket, and the launched child
// editor for the lifetime of one test session. Exclusively owned by its
// caller, which releases it with Stop; Stop is safe to call more than
// once, and a failed Start has already released what it acquired.
type Worker struct {
	id       int
	pool     string
	cfg      Config
	launcher Launcher
	log      *slog.Logger
	metrics  *metrics.Collector

	stateMu  sync.Mutex
	state    handshakeState
	wasReady bool

	transport *transportServer
	conn      *websocket.Conn
	writeMu   sync.Mutex

	launchHandle LaunchHandle
	childDone    chan error

	pending    *pendingRegistry
	rpcEvents  *scoped.Broadcaster[any]
	disposal   *scoped.Stack
	handshake  *scoped.Future[struct{}]
	readLoopWG sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

// Option configures a Worker at construction.
type Option func(*Worker)

// WithLogger overrides the Worker's logger. Defaults to a discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Worker) { w.log = log }
}

// WithMetrics overrides the Worker's metrics collector. Defaults to an
// unregistered collector, so nothing is exported.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Worker) { w.metrics = c }
}

// WithPoolName overrides the "pool" identifier stamped into every
// SerializedSession this Worker sends. Defaults to "vscode".
func WithPoolName(name string) Option {
	return func(w *Worker) { w.pool = name }
}

// NewWorker constructs a Worker with the given monotonic id and launcher.
// Start must be called before Send.
func NewWorker(id int, cfg Config, launcher Launcher, opts ...Option) *Worker {
	w := &Worker{
		id:        id,
		pool:      "vscode",
		cfg:       cfg,
		launcher:  launcher,
		log:       logger.Discard(),
		metrics:   metrics.Noop(),
		state:     stateBooting,
		pending:   nil,
		rpcEvents: scoped.NewBroadcaster[any](),
		disposal:  scoped.NewStack(),
		handshake: scoped.NewFuture[struct{}](),
		childDone: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pending = newPendingRegistry(w.log)
	return w
}

// ID returns the worker's monotonically increasing identifier.
func (w *Worker) ID() int { return w.id }

// CanReuse reports the configured reuse-worker flag, telling the outer
// runner whether to start a new Worker per file or keep this one across
// files.
func (w *Worker) CanReuse() bool { return w.cfg.ReuseWorker }

func (w *Worker) setState(s handshakeState) {
	w.stateMu.Lock()
	w.state = s
	if s == stateReady {
		w.wasReady = true
	}
	w.stateMu.Unlock()
}

func (w *Worker) getState() handshakeState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *Worker) everReady() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.wasReady
}

// Start acquires a loopback transport endpoint, launches the child
// editor with the endpoint passed as CHILD_TRANSPORT_ADDR, waits for the
// single inbound client connection, consumes its ready control message,
// and returns only after transmitting ready_ack. The acquired resources
// are pushed onto a LIFO disposal stack so Stop unwinds them in reverse
// order even on partial failure here.
func (w *Worker) Start(ctx context.Context, launchArgs []string) error {
	err := w.start(ctx, launchArgs)
	if err != nil {
		// Every resource acquired so far MUST be released immediately on
		// a failed Start, not left for a Stop call the caller has no
		// reason to make on a worker that never became Ready.
		w.setState(stateClosed)
		w.disposal.Release()
		w.readLoopWG.Wait()
	}
	return err
}

func (w *Worker) start(ctx context.Context, launchArgs []string) error {
	ts, err := newTransportServer(w.log)
	if err != nil {
		return err
	}
	w.transport = ts

	w.setState(stateAwaitingConnect)

	spec := LaunchSpec{
		TransportAddr:        "ws://" + ts.Addr(),
		Version:              w.cfg.Version,
		EditorExecutablePath: w.cfg.EditorExecutablePath,
		ReuseMachineInstall:  w.cfg.ReuseMachineInstall,
		Platform:             w.cfg.Platform,
		CachePath:            w.cfg.CachePath,
		Args:                 buildLaunchArgs(launchArgs),
		Debug:                w.cfg.Debug,
	}

	handle, err := w.launcher.Launch(ctx, spec)
	if err != nil {
		// Nothing has been pushed onto the disposal stack yet at this
		// point, so the transport built above would otherwise leak.
		_ = ts.Close()
		return fmt.Errorf("%w: %v", ErrChildLaunchFailed, err)
	}
	w.launchHandle = handle
	// Pushed first so it releases last: stop() closes the socket and
	// the transport before awaiting the child's exit.
	w.disposal.Push(func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
		defer cancel()
		err := handle.Wait(waitCtx)
		if waitCtx.Err() != nil {
			// Grace period elapsed without a clean exit; force it rather
			// than leave the child running.
			if killErr := handle.Kill(); killErr != nil {
				err = fmt.Errorf("kill child editor: %w", killErr)
			} else {
				err = fmt.Errorf("child editor did not exit within %s, killed", w.cfg.ShutdownTimeout)
			}
		}
		w.childDone <- err
		close(w.childDone)
	})
	w.disposal.Push(func() { _ = ts.Close() })

	handshakeCtx, cancel := context.WithTimeout(ctx, w.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := ts.Accept(handshakeCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	w.conn = conn
	w.disposal.Push(func() { _ = conn.Close() })

	w.setState(stateAwaitingReady)
	w.readLoopWG.Add(1)
	go w.readLoop()

	select {
	case <-w.handshake.Done():
		_, err := w.handshake.Await()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
		}
	case <-handshakeCtx.Done():
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, handshakeCtx.Err())
	}

	w.setState(stateReady)
	w.metrics.WorkerReady(1)
	w.log.Info("worker ready", logger.WorkerID(w.id))
	return nil
}

// readLoop is the Worker's sole reader of the client socket; it decodes
// every frame and dispatches it to the handshake future, the pending
// request registry, or the RPC broadcaster, exactly one of which applies
// to any given envelope.
func (w *Worker) readLoop() {
	defer w.readLoopWG.Done()
	defer w.onConnClosed()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if !w.handshake.IsSettled() {
				w.handshake.Reject(err)
			}
			return
		}

		env, err := envelope.Decode(data)
		if err != nil {
			w.log.Warn("malformed envelope ignored", logger.Error(err))
			continue
		}

		switch env.Channel {
		case envelope.Control:
			w.handleControlInbound(env.Payload)
		case envelope.RPC:
			w.rpcEvents.Publish(env.Payload)
		default:
			w.log.Warn("unknown channel ignored", logger.Channel(string(env.Channel)))
		}
	}
}

func (w *Worker) handleControlInbound(payload any) {
	if req, ok := envelope.AsControlRequest(payload); ok {
		w.handleInboundRequest(req)
		return
	}
	if resp, ok := envelope.AsControlResponse(payload); ok {
		w.pending.resolve(resp)
		return
	}
	w.log.Warn("control payload matched neither request nor response shape")
}

// handleInboundRequest handles the only request the worker ever sends:
// ready, during the handshake. Anything else arriving as a request
// before Ready is answered with a not_ready error.
func (w *Worker) handleInboundRequest(req envelope.ControlRequest) {
	if w.getState() != stateAwaitingReady || req.Action != envelope.ActionReady {
		w.writeControlResponse(envelope.ControlResponse{ID: req.ID, Success: false, Error: "not_ready"})
		return
	}

	if !w.handshake.IsSettled() {
		w.handshake.Resolve(struct{}{})
	}
	// ready_ack echoes the ready request's id but, like ready itself,
	// never goes through response correlation: it is never tracked in
	// the pending registry.
	w.writeControlRequestFireAndForget(envelope.ControlRequest{ID: req.ID, Action: envelope.ActionReadyAck})
}

// writeControlRequestFireAndForget sends ready_ack, which unlike every
// other control request expects no reply and is not tracked in the
// pending registry.
func (w *Worker) writeControlRequestFireAndForget(req envelope.ControlRequest) {
	frame, err := envelope.Encode(envelope.Control, req)
	if err != nil {
		w.log.Error("encode ready_ack failed", logger.Error(err))
		return
	}
	w.writeFrame(frame)
}

func (w *Worker) writeControlResponse(resp envelope.ControlResponse) {
	frame, err := envelope.Encode(envelope.Control, resp)
	if err != nil {
		w.log.Error("encode control response failed", logger.Error(err))
		return
	}
	w.writeFrame(frame)
}

func (w *Worker) writeFrame(frame string) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		w.log.Error("transport write failed", logger.Error(err))
	}
}

func (w *Worker) onConnClosed() {
	if w.getState() == stateClosed {
		return
	}
	w.setState(stateClosed)
	w.pending.rejectAll(ErrWorkerDisconnected)
}

// Send validates the worker is Ready and the socket open, frames request
// through the envelope codec, writes it, and returns a Future that
// settles with the matching ControlResponse or a timeout/disconnect
// error. session is attached only for run/collect; every other action
// sends it as nil.
func (w *Worker) Send(action envelope.Action, session *envelope.SerializedSession) (*scoped.Future[envelope.ControlResponse], error) {
	if w.getState() != stateReady {
		return nil, ErrNotReady
	}

	id := uuid.NewString()
	req := envelope.ControlRequest{ID: id, Action: action, Ctx: session}

	frame, err := envelope.Encode(envelope.Control, req)
	if err != nil {
		return nil, fmt.Errorf("pool: encode %s request: %w", action, err)
	}

	timeout := w.cfg.effectiveControlRequestTimeout()
	if action == envelope.ActionShutdown {
		timeout = w.cfg.ShutdownTimeout
	}
	future := w.pending.register(id, action, timeout)

	w.writeFrame(frame)
	w.metrics.RecordSent(string(action))

	sent := time.Now()
	go func() {
		_, err := future.Await()
		switch {
		case err == nil:
			w.metrics.RecordLatency(string(action), time.Since(sent))
		case errors.Is(err, ErrControlRequestTimeout):
			w.metrics.RecordTimeout(string(action))
		}
	}()

	return future, nil
}

// RunTests sends a run control request for the given session.
func (w *Worker) RunTests(session envelope.SerializedSession) (*scoped.Future[envelope.ControlResponse], error) {
	session.Pool = w.pool
	session.WorkerID = w.id
	return w.Send(envelope.ActionRun, &session)
}

// CollectTests sends a collect control request for the given session.
func (w *Worker) CollectTests(session envelope.SerializedSession) (*scoped.Future[envelope.ControlResponse], error) {
	session.Pool = w.pool
	session.WorkerID = w.id
	return w.Send(envelope.ActionCollect, &session)
}

// On subscribes to raw RPC-channel payloads observed on the socket,
// intended for the outer runner's RPC layer to attach its own codec.
func (w *Worker) On(handler func(payload any)) scoped.Subscription {
	return w.rpcEvents.On(handler)
}

// Off removes a subscription previously returned by On.
func (w *Worker) Off(sub scoped.Subscription) {
	w.rpcEvents.Off(sub)
}

// Deserialize exposes the envelope codec so the runner can decode
// RPC-channel envelopes it observes independently.
func (w *Worker) Deserialize(raw any) (envelope.Envelope, error) {
	return envelope.Decode(raw)
}

// Publish forwards an RPC-channel message to the worker, wrapping it in
// an envelope first. Used to carry the outer runner's own RPC traffic
// (including cancellation notifications) to the in-editor runtime.
func (w *Worker) Publish(payload any) error {
	if w.getState() == stateClosed {
		return ErrWorkerDisconnected
	}
	frame, err := envelope.Encode(envelope.RPC, payload)
	if err != nil {
		return fmt.Errorf("pool: encode rpc payload: %w", err)
	}
	w.writeFrame(frame)
	return nil
}

// Stop initiates ordered shutdown: send shutdown and await its response
// (if Ready), close the socket, close the transport, await the child
// editor's exit, then reject any requests still pending. Safe to call
// more than once; the second call returns the first call's result
// immediately. Errors from each step are aggregated rather than
// short-circuited, since stop() MUST NOT leave dangling resources even
// under partial failure.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.stopErr = w.doStop(ctx)
	})
	return w.stopErr
}

func (w *Worker) doStop(ctx context.Context) error {
	var causes []error

	if w.getState() == stateReady {
		future, err := w.Send(envelope.ActionShutdown, nil)
		if err != nil {
			causes = append(causes, err)
		} else {
			select {
			case <-future.Done():
				if _, err := future.Await(); err != nil {
					causes = append(causes, err)
				}
			case <-ctx.Done():
				causes = append(causes, ctx.Err())
			}
		}
	}

	w.disposal.Release()

	if w.launchHandle != nil {
		// disposal.Release already waited on (and, if necessary, killed)
		// the child as part of unwinding the stack, so childDone is
		// guaranteed to hold a value by now.
		if err := <-w.childDone; err != nil {
			causes = append(causes, fmt.Errorf("child editor exit: %w", err))
		}
	}

	w.readLoopWG.Wait()
	w.pending.rejectAll(ErrWorkerStopped)
	w.rpcEvents.Teardown()
	if w.everReady() {
		// Only a worker that actually completed the handshake incremented
		// the gauge; a Start that failed before reaching stateReady must
		// not decrement a sibling worker's count on the shared Collector.
		w.metrics.WorkerReady(-1)
	}

	if len(causes) == 0 {
		return nil
	}
	return &StopError{Causes: causes}
}
