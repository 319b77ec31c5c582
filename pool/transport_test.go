package pool

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/logger"
)

func TestTransportServer_RejectsSecondConnectionEvenAfterFirstIsAccepted(t *testing.T) {
	ts, err := newTransportServer(logger.Discard())
	require.NoError(t, err)
	defer ts.Close()

	url := "ws://" + ts.Addr()

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, err := ts.Accept(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)

	// The accepted channel is now drained; a second connection arriving
	// after this point must still be rejected, not silently upgraded and
	// leaked.
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	_, _, err = second.ReadMessage()
	assert.Error(t, err, "transport must close a second connection rather than leave it open and unserved")
}
