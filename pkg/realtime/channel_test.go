package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/notification"
	"github.com/kart-io/notifyrelay/pkg/utils/idgen"
)

const validNotification = `{"id":"n-1","recipientId":"u-1","message":"hello","status":"unread",` +
	`"createdAt":"2026-03-01T12:00:00Z","updatedAt":"2026-03-01T12:00:00Z"}`

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) Store(ctx context.Context, n *notification.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func accept(t *testing.T, ch *Channel) (string, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	id, err := ch.Accept(context.Background(), conn)
	require.NoError(t, err)
	return id, conn
}

func TestChannel_AcceptSendsAck(t *testing.T) {
	ch := NewChannel(nil)
	id, conn := accept(t, ch)

	ack := conn.Last(t)
	assert.Equal(t, "connection_ack", ack["type"])
	assert.Equal(t, id, ack["clientId"])
	assert.Equal(t, 1, ch.Connections())
}

func TestChannel_AcceptAckFailure(t *testing.T) {
	ch := NewChannel(nil)
	conn := newFakeConn()
	conn.writeErr = errBrokenPipe

	_, err := ch.Accept(context.Background(), conn)
	assert.Equal(t, errors.ErrRealtimeWrite, errors.GetCode(err))
	assert.Zero(t, ch.Connections())
	assert.EqualValues(t, 1, conn.closed.Load())
}

func TestChannel_Broadcast(t *testing.T) {
	ch := NewChannel(nil)
	_, a := accept(t, ch)
	_, b := accept(t, ch)
	_, notReady := accept(t, ch)
	goneID, gone := accept(t, ch)

	notReady.ready.Store(false)
	ch.Disconnect(goneID)

	n, err := ch.Broadcast(context.Background(), map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "world", a.Last(t)["hello"])
	assert.Equal(t, "world", b.Last(t)["hello"])
	assert.Len(t, notReady.Frames(), 1, "only the ack")
	assert.Len(t, gone.Frames(), 1, "only the ack")
	assert.EqualValues(t, 1, gone.closed.Load())
}

func TestChannel_BroadcastDropsFailedConnection(t *testing.T) {
	ch := NewChannel(nil)
	_, ok := accept(t, ch)
	badID, bad := accept(t, ch)
	bad.writeErr = errBrokenPipe

	n, err := ch.Broadcast(context.Background(), []byte(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, `{"x":1}`, string(ok.Frames()[1]))

	_, found := ch.registry.Get(badID)
	assert.False(t, found)
	assert.EqualValues(t, 1, bad.closed.Load())
}

func TestChannel_BroadcastEncodeError(t *testing.T) {
	ch := NewChannel(nil)
	_, err := ch.Broadcast(context.Background(), make(chan int))
	assert.True(t, errors.IsRealtime(err))
	assert.Equal(t, errors.ErrRealtimeEncode, errors.GetCode(err))
}

func TestChannel_Direct(t *testing.T) {
	ch := NewChannel(nil)
	id, conn := accept(t, ch)
	_, other := accept(t, ch)

	require.NoError(t, ch.Direct(context.Background(), id, json.RawMessage(`{"to":"you"}`)))
	assert.Equal(t, "you", conn.Last(t)["to"])
	assert.Len(t, other.Frames(), 1)

	err := ch.Direct(context.Background(), "missing", []byte(`{}`))
	assert.Equal(t, errors.ErrRecipientUnavailable, errors.GetCode(err))

	conn.ready.Store(false)
	err = ch.Direct(context.Background(), id, []byte(`{}`))
	assert.Equal(t, errors.ErrRecipientUnavailable, errors.GetCode(err))
}

func TestChannel_HandleFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantCode  errors.Code
		wantReply string
	}{
		{"not json", `{oops`, errors.ErrInvalidFrame, MsgInvalidFormat},
		{"unknown type", `{"type":"shout"}`, errors.ErrInvalidMessageType, MsgInvalidType},
		{"missing type", `{}`, errors.ErrInvalidMessageType, MsgInvalidType},
		{"direct to nobody", `{"type":"direct","recipientId":"ghost","notification":` + validNotification + `}`,
			errors.ErrRecipientUnavailable, MsgRecipientUnavailable},
		{"direct without recipient", `{"type":"direct","notification":` + validNotification + `}`,
			errors.ErrInvalidPayload, MsgMissingRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewChannel(nil)
			id, sender := accept(t, ch)
			_, bystander := accept(t, ch)

			err := ch.HandleFrame(context.Background(), id, []byte(tt.frame))
			assert.Equal(t, tt.wantCode, errors.GetCode(err))

			reply := sender.Last(t)
			assert.Equal(t, "error", reply["type"])
			assert.Equal(t, tt.wantReply, reply["error"])
			assert.Len(t, bystander.Frames(), 1)
			assert.Equal(t, 2, ch.Connections())
		})
	}
}

func TestChannel_HandleFrameInvalidNotification(t *testing.T) {
	ch := NewChannel(nil)
	id, sender := accept(t, ch)
	_, bystander := accept(t, ch)

	frame := `{"type":"broadcast","notification":{"id":"n-1","recipientId":"u-1","message":"",` +
		`"status":"unread","createdAt":"2026-03-01T12:00:00Z","updatedAt":"2026-03-01T12:00:00Z"}}`
	err := ch.HandleFrame(context.Background(), id, []byte(frame))
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))

	var verrs *notification.ValidationErrors
	require.True(t, stderrors.As(err, &verrs))
	assert.Equal(t, []string{"message"}, verrs.Fields())

	reply := sender.Last(t)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["error"], "message")
	assert.Len(t, bystander.Frames(), 1)
}

func TestChannel_HandleFrameBroadcast(t *testing.T) {
	persister := new(mockPersister)
	ch := NewChannel(nil, WithPersister(persister))
	id, sender := accept(t, ch)
	_, peer := accept(t, ch)

	frame := `{"type":"broadcast","notification":` + validNotification + `}`
	require.NoError(t, ch.HandleFrame(context.Background(), id, []byte(frame)))

	assert.JSONEq(t, validNotification, string(peer.Frames()[1]))
	assert.JSONEq(t, validNotification, string(sender.Frames()[1]))
	persister.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestChannel_HandleFrameBroadcastPersist(t *testing.T) {
	persister := new(mockPersister)
	persister.On("Store", mock.Anything, mock.MatchedBy(func(n *notification.Notification) bool {
		return n.ID == "n-1" && n.Message == "hello"
	})).Return(stderrors.New("redis down")).Once()

	ch := NewChannel(nil, WithPersister(persister))
	id, _ := accept(t, ch)
	_, peer := accept(t, ch)

	frame := `{"type":"broadcast","persist":true,"notification":` + validNotification + `}`
	require.NoError(t, ch.HandleFrame(context.Background(), id, []byte(frame)))

	assert.Len(t, peer.Frames(), 2)
	persister.AssertExpectations(t)
}

func TestChannel_HandleFrameDirect(t *testing.T) {
	ch := NewChannel(nil)
	id, sender := accept(t, ch)
	targetID, target := accept(t, ch)
	_, bystander := accept(t, ch)

	frame := `{"type":"direct","recipientId":"` + targetID + `","notification":` + validNotification + `}`
	require.NoError(t, ch.HandleFrame(context.Background(), id, []byte(frame)))

	assert.JSONEq(t, validNotification, string(target.Frames()[1]))
	assert.Len(t, sender.Frames(), 1)
	assert.Len(t, bystander.Frames(), 1)
}

func TestChannel_Close(t *testing.T) {
	ch := NewChannel(nil)
	_, a := accept(t, ch)
	_, b := accept(t, ch)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Zero(t, ch.Connections())
	assert.EqualValues(t, 1, a.closed.Load())
	assert.EqualValues(t, 1, b.closed.Load())

	_, err := ch.Broadcast(context.Background(), []byte("{}"))
	assert.Equal(t, errors.ErrRealtimeClosed, errors.GetCode(err))

	_, err = ch.Accept(context.Background(), newFakeConn())
	assert.Equal(t, errors.ErrRealtimeClosed, errors.GetCode(err))
}

func TestChannel_AcceptRacingClose(t *testing.T) {
	var ch *Channel
	// Close lands between the closed check and Register.
	ch = NewChannel(NewRegistry(WithIDGenerator(idgen.Func(func() string {
		ch.closed.Store(true)
		return "late"
	}))))
	conn := newFakeConn()

	_, err := ch.Accept(context.Background(), conn)
	assert.Equal(t, errors.ErrRealtimeClosed, errors.GetCode(err))
	assert.Zero(t, ch.Connections())
	assert.EqualValues(t, 1, conn.closed.Load())
	assert.Empty(t, conn.Frames())
}

func TestChannel_CanceledContextKeepsConnections(t *testing.T) {
	ch := NewChannel(nil)
	id, a := accept(t, ch)
	_, b := accept(t, ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := ch.Broadcast(ctx, []byte(`{"x":1}`))
	assert.Zero(t, n)
	assert.Equal(t, errors.ErrRealtimeBroadcast, errors.GetCode(err))
	assert.ErrorIs(t, err, context.Canceled)

	err = ch.Direct(ctx, id, []byte(`{"x":1}`))
	assert.Equal(t, errors.ErrRealtimeWrite, errors.GetCode(err))

	assert.Equal(t, 2, ch.Connections())
	for _, conn := range []*fakeConn{a, b} {
		assert.True(t, conn.Ready())
		assert.Zero(t, conn.closed.Load())
		assert.Len(t, conn.Frames(), 1, "only the ack")
	}

	n, err = ch.Broadcast(context.Background(), []byte(`{"x":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestChannel_ContextCanceledMidBroadcast(t *testing.T) {
	ch := NewChannel(nil)
	conns := make([]*fakeConn, 0, 3)
	for range 3 {
		_, c := accept(t, ch)
		conns = append(conns, c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, c := range conns {
		c.onWrite = cancel
	}

	n, err := ch.Broadcast(ctx, []byte(`{"x":1}`))
	assert.Equal(t, 1, n)
	assert.Equal(t, errors.ErrRealtimeBroadcast, errors.GetCode(err))

	assert.Equal(t, 3, ch.Connections())
	for _, c := range conns {
		assert.True(t, c.Ready())
		assert.Zero(t, c.closed.Load())
	}
}

func TestChannel_DirectDropsBrokenConnection(t *testing.T) {
	ch := NewChannel(nil)
	id, conn := accept(t, ch)
	conn.writeErr = errBrokenPipe

	err := ch.Direct(context.Background(), id, []byte(`{}`))
	assert.Equal(t, errors.ErrRealtimeWrite, errors.GetCode(err))
	assert.Zero(t, ch.Connections())
	assert.EqualValues(t, 1, conn.closed.Load())
}
