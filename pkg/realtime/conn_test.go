package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeConn records every frame written to it.
type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	ready    atomic.Bool
	closed   atomic.Int32
	writeErr error
	onWrite  func()
}

func newFakeConn() *fakeConn {
	c := &fakeConn{}
	c.ready.Store(true)
	return c
}

func (c *fakeConn) Ready() bool { return c.ready.Load() && c.closed.Load() == 0 }

// Write behaves like WSConn: a done ctx refuses the write and keeps the
// connection ready, a transport error marks it broken.
func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.writeErr != nil {
		c.ready.Store(false)
		return c.writeErr
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	if c.onWrite != nil {
		c.onWrite()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func (c *fakeConn) Last(t *testing.T) map[string]any {
	t.Helper()
	frames := c.Frames()
	require.NotEmpty(t, frames)
	var m map[string]any
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &m))
	return m
}

var errBrokenPipe = stderrors.New("broken pipe")
