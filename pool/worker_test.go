package pool_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
	"github.com/andrew-w-ross/vscode-test-pool/pool"
	"github.com/andrew-w-ross/vscode-test-pool/pool/metrics"
)

// fakeWorkerConn dials a Worker's transport, completes the ready
// handshake, and exposes send/recv helpers for driving the rest of a
// scenario from the worker side without a real editor process.
type fakeWorkerConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWorker(t *testing.T, launcher *pool.StaticLauncher) *fakeWorkerConn {
	t.Helper()

	var raw string
	require.Eventually(t, func() bool {
		raw = launcher.Spec().TransportAddr
		return raw != ""
	}, time.Second, time.Millisecond)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	u.Scheme = "ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)

	fw := &fakeWorkerConn{t: t, conn: conn}
	fw.send(envelope.Control, envelope.ControlRequest{ID: "ready-1", Action: envelope.ActionReady})

	env := fw.recv()
	require.Equal(t, envelope.Control, env.Channel)
	ackReq, ok := envelope.AsControlRequest(env.Payload)
	require.True(t, ok)
	require.Equal(t, envelope.ActionReadyAck, ackReq.Action)
	require.Equal(t, "ready-1", ackReq.ID)

	return fw
}

func (fw *fakeWorkerConn) send(channel envelope.Channel, payload any) {
	fw.t.Helper()
	frame, err := envelope.Encode(channel, payload)
	require.NoError(fw.t, err)
	require.NoError(fw.t, fw.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (fw *fakeWorkerConn) recv() envelope.Envelope {
	fw.t.Helper()
	_, data, err := fw.conn.ReadMessage()
	require.NoError(fw.t, err)
	env, err := envelope.Decode(data)
	require.NoError(fw.t, err)
	return env
}

func testConfig() pool.Config {
	return pool.Config{
		Timeout:         2 * time.Second,
		HandshakeTimeout: time.Second,
		ShutdownTimeout: time.Second,
	}
}

func TestWorker_StartCompletesHandshake(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()

	fw := dialWorker(t, launcher)
	defer fw.conn.Close()

	require.NoError(t, <-errCh)
	assert.Equal(t, 1, w.ID())

	go func() {
		env := fw.recv()
		req, _ := envelope.AsControlRequest(env.Payload)
		fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})
	}()

	launcher.Exit()
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorker_LaunchArgsAppendDisableExtensions(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), []string{"--user-data-dir=/tmp/x"}) }()

	fw := dialWorker(t, launcher)
	defer fw.conn.Close()
	require.NoError(t, <-errCh)

	args := launcher.Spec().Args
	require.NotEmpty(t, args)
	assert.Equal(t, "--disable-extensions", args[0])
	assert.Contains(t, args, "--user-data-dir=/tmp/x")

	launcher.Exit()
	_ = w.Stop(context.Background())
}

func TestWorker_CollectDispatchesCorrectly(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	defer fw.conn.Close()
	require.NoError(t, <-errCh)

	session := envelope.SerializedSession{
		ProjectName: "widgets",
		Files: []envelope.FileSpec{
			{Filepath: "tests/alpha.test.ts", TestLocations: []int{}},
		},
		Environment: envelope.EnvironmentSpec{Name: "node"},
	}

	future, err := w.CollectTests(session)
	require.NoError(t, err)

	env := fw.recv()
	req, ok := envelope.AsControlRequest(env.Payload)
	require.True(t, ok)
	assert.Equal(t, envelope.ActionCollect, req.Action)
	require.NotNil(t, req.Ctx)
	assert.Equal(t, "vscode", req.Ctx.Pool)
	assert.Equal(t, 1, req.Ctx.WorkerID)
	assert.Equal(t, "tests/alpha.test.ts", req.Ctx.Files[0].Filepath)

	fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})

	resp, err := future.Await()
	require.NoError(t, err)
	assert.True(t, resp.Success)

	shutdownFuture := make(chan struct{})
	go func() {
		launcher.Exit()
		close(shutdownFuture)
	}()

	stopDone := make(chan error, 1)
	go func() { stopDone <- w.Stop(context.Background()) }()

	env = fw.recv()
	req, ok = envelope.AsControlRequest(env.Payload)
	require.True(t, ok)
	assert.Equal(t, envelope.ActionShutdown, req.Action)
	fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})

	<-shutdownFuture
	require.NoError(t, <-stopDone)
}

func TestWorker_RequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ControlRequestTimeout = 50 * time.Millisecond
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, cfg, launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	defer fw.conn.Close()
	require.NoError(t, <-errCh)

	start := time.Now()
	future, err := w.RunTests(envelope.SerializedSession{})
	require.NoError(t, err)

	// peer never replies
	_, err = future.Await()
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, pool.ErrControlRequestTimeout))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)

	// socket remains usable after a timeout
	fw.recv() // drain the run request frame already on the wire
	future2, err := w.RunTests(envelope.SerializedSession{})
	require.NoError(t, err)
	env := fw.recv()
	req, _ := envelope.AsControlRequest(env.Payload)
	fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})
	resp, err := future2.Await()
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestWorker_DisconnectFanOutRejectsAllPending(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	require.NoError(t, <-errCh)

	f1, err := w.RunTests(envelope.SerializedSession{ProjectName: "a"})
	require.NoError(t, err)
	f2, err := w.RunTests(envelope.SerializedSession{ProjectName: "b"})
	require.NoError(t, err)
	f3, err := w.RunTests(envelope.SerializedSession{ProjectName: "c"})
	require.NoError(t, err)

	require.NoError(t, fw.conn.Close())

	for _, f := range []interface {
		Await() (envelope.ControlResponse, error)
	}{f1, f2, f3} {
		_, err := f.Await()
		require.Error(t, err)
		assert.True(t, errors.Is(err, pool.ErrWorkerDisconnected))
	}
}

func TestWorker_MalformedMessageIgnored(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	defer fw.conn.Close()
	require.NoError(t, <-errCh)

	require.NoError(t, fw.conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"banana","payload":{}}`)))

	// give the read loop a moment to process and discard it, then prove
	// the connection is still healthy by completing an ordinary exchange.
	time.Sleep(20 * time.Millisecond)

	future, err := w.CollectTests(envelope.SerializedSession{})
	require.NoError(t, err)
	env := fw.recv()
	req, _ := envelope.AsControlRequest(env.Payload)
	fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})
	_, err = future.Await()
	require.NoError(t, err)
}

func TestWorker_HandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.HandshakeTimeout = 50 * time.Millisecond
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, cfg, launcher)

	err := w.Start(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pool.ErrHandshakeFailed) || strings.Contains(err.Error(), "handshake"))
}

func TestWorker_SendBeforeReadyFails(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	_, err := w.RunTests(envelope.SerializedSession{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pool.ErrNotReady))
}

func TestWorker_StopKillsChildAfterGracePeriodElapses(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, cfg, launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	defer fw.conn.Close()
	require.NoError(t, <-errCh)

	// Reply to shutdown but never call launcher.Exit(): the child hangs
	// past ShutdownTimeout and must be force-killed rather than left
	// running.
	go func() {
		env := fw.recv()
		req, _ := envelope.AsControlRequest(env.Payload)
		fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})
	}()

	err := w.Stop(context.Background())
	require.Error(t, err)
	assert.True(t, launcher.Killed(), "Stop must kill a child that outlives the shutdown grace period")
}

func TestWorker_StopAfterFailedStartDoesNotUnderflowReadyGauge(t *testing.T) {
	collector := metrics.NewCollector(nil)
	launcher := pool.NewStaticLauncher().WithLaunchError(errors.New("boom"))
	w := pool.NewWorker(1, testConfig(), launcher, pool.WithMetrics(collector))

	require.Error(t, w.Start(context.Background(), nil))
	assert.Equal(t, float64(0), collector.WorkersReadyValue())

	// A worker that never reached stateReady must not decrement a gauge
	// shared with other workers in the pool.
	_ = w.Stop(context.Background())
	assert.Equal(t, float64(0), collector.WorkersReadyValue())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	launcher := pool.NewStaticLauncher()
	w := pool.NewWorker(1, testConfig(), launcher)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(context.Background(), nil) }()
	fw := dialWorker(t, launcher)
	require.NoError(t, <-errCh)

	go func() {
		env := fw.recv()
		req, _ := envelope.AsControlRequest(env.Payload)
		fw.send(envelope.Control, envelope.ControlResponse{ID: req.ID, Success: true})
		launcher.Exit()
	}()

	err1 := w.Stop(context.Background())
	err2 := w.Stop(context.Background())
	assert.Equal(t, err1, err2)
}
