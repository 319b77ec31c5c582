package scoped_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
)

func TestFuture_ResolveThenAwait(t *testing.T) {
	f := scoped.NewFuture[int]()
	go func() { f.Resolve(42) }()

	v, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFuture_RejectWins(t *testing.T) {
	f := scoped.NewFuture[int]()
	f.Reject(assert.AnError)
	f.Resolve(1) // no-op, already settled

	v, err := f.Await()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, v)
}

func TestFuture_AwaitTimeout(t *testing.T) {
	f := scoped.NewFuture[int]()

	_, err := f.AwaitTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, scoped.ErrTimeout)

	f.Resolve(7)
	v, err := f.AwaitTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
