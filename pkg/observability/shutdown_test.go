package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsFuncsInOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)

	var order []int
	sm.RegisterShutdownFunc(func(ctx context.Context) error { order = append(order, 1); return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { order = append(order, 2); return nil })

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []int{1, 2}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)

	closeErr := errors.New("close failed")
	ran := false
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return closeErr })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran = true; return nil })

	err := sm.Shutdown()
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, ran, "later functions still run")
}

func TestShutdownManager_StopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), server, time.Second)

	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}

func TestShutdownManager_WaitForShutdownOnCancel(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)

	closed := make(chan struct{})
	sm.RegisterShutdownFunc(func(ctx context.Context) error { close(closed); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	select {
	case <-closed:
	default:
		t.Fatal("shutdown function did not run")
	}
}
