package email

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/notifyrelay/pkg/errors"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) Configured() bool {
	return m.Called().Bool(0)
}

func (m *mockTransport) Verify(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTransport) SendMail(ctx context.Context, mail Mail) error {
	return m.Called(ctx, mail).Error(0)
}

func newMockTransport() *mockTransport {
	t := new(mockTransport)
	t.On("Configured").Return(true).Maybe()
	return t
}

var errConnRefused = stderrors.New("dial tcp 127.0.0.1:587: connect: connection refused")

func TestChannel_SendSuccess(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil).Once()
	tr.On("SendMail", mock.Anything, Mail{
		From:     "noreply@example.com",
		To:       "user123",
		Subject:  "New Notification",
		HTMLBody: "<p>hi</p>",
	}).Return(nil).Once()

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)), WithSender("noreply@example.com"))
	require.NoError(t, ch.Send(context.Background(), "user123", "New Notification", "<p>hi</p>"))
	tr.AssertExpectations(t)
}

func TestChannel_Preconditions(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		tr := new(mockTransport)
		tr.On("Configured").Return(false)

		err := NewChannel(tr).Send(context.Background(), "a@example.com", "s", "b")
		assert.True(t, errors.IsConfiguration(err))
		assert.False(t, errors.IsRetryable(err))
		tr.AssertNotCalled(t, "Verify", mock.Anything)
		tr.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
	})

	t.Run("nil transport", func(t *testing.T) {
		err := NewChannel(nil).Send(context.Background(), "a@example.com", "s", "b")
		assert.Equal(t, errors.ErrNotConfigured, errors.GetCode(err))
	})

	cases := []struct {
		name, recipient, subject, body, missing string
	}{
		{"recipient", "", "s", "b", "recipient"},
		{"subject", "a@example.com", " ", "b", "subject"},
		{"body", "a@example.com", "s", "", "body"},
	}
	for _, tc := range cases {
		t.Run("empty "+tc.name, func(t *testing.T) {
			tr := newMockTransport()
			err := NewChannel(tr).Send(context.Background(), tc.recipient, tc.subject, tc.body)
			assert.True(t, errors.IsValidation(err))
			assert.Contains(t, err.Error(), tc.missing)
			tr.AssertNotCalled(t, "Verify", mock.Anything)
			tr.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
		})
	}
}

func TestChannel_RetriesThenSucceeds(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil).Once()
	tr.On("SendMail", mock.Anything, mock.Anything).Return(errConnRefused).Once()
	tr.On("SendMail", mock.Anything, mock.Anything).Return(nil).Once()

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)))
	require.NoError(t, ch.Send(context.Background(), "a@example.com", "s", "b"))

	tr.AssertNumberOfCalls(t, "Verify", 1)
	tr.AssertNumberOfCalls(t, "SendMail", 2)
}

func TestChannel_ExhaustsAttempts(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("SendMail", mock.Anything, mock.Anything).Return(errConnRefused)

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)))
	err := ch.Send(context.Background(), "a@example.com", "s", "b")
	require.Error(t, err)

	assert.True(t, errors.IsDurable(err))
	assert.Equal(t, errors.ErrDurableSendFailed, errors.GetCode(err))
	assert.ErrorIs(t, err, errConnRefused)

	ne, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, 3, ne.AttemptCount)
	assert.False(t, ne.Retryable)

	tr.AssertNumberOfCalls(t, "SendMail", 3)
}

func TestChannel_VerifyFailureCountsAsAttempt(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(errConnRefused).Twice()
	tr.On("Verify", mock.Anything).Return(nil).Once()
	tr.On("SendMail", mock.Anything, mock.Anything).Return(nil).Once()

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)))
	require.NoError(t, ch.Send(context.Background(), "a@example.com", "s", "b"))
	tr.AssertExpectations(t)
}

func TestChannel_VerifyAlwaysFails(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(errConnRefused)

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)))
	err := ch.Send(context.Background(), "a@example.com", "s", "b")

	assert.Equal(t, errors.ErrDurableSendFailed, errors.GetCode(err))
	assert.ErrorIs(t, err, errors.New(errors.ErrDurableHandshake, ""))
	tr.AssertNumberOfCalls(t, "Verify", 3)
	tr.AssertNotCalled(t, "SendMail", mock.Anything, mock.Anything)
}

func TestChannel_NonRetryableStopsEarly(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("SendMail", mock.Anything, mock.Anything).
		Return(errors.New(errors.ErrInvalidRecipient, "invalid recipient address"))

	ch := NewChannel(tr, WithRetryPolicy(errors.NoDelayPolicy(3)))
	err := ch.Send(context.Background(), "nobody", "s", "b")

	assert.True(t, errors.IsDurable(err))
	assert.ErrorIs(t, err, errors.New(errors.ErrInvalidRecipient, ""))
	ne, _ := errors.As(err)
	assert.Equal(t, 1, ne.AttemptCount)
	tr.AssertNumberOfCalls(t, "SendMail", 1)
}

func TestChannel_LinearBackoffDelays(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("SendMail", mock.Anything, mock.Anything).Return(errConnRefused)

	policy := errors.NewLinearBackoffPolicy(20*time.Millisecond, 20*time.Millisecond, 0, 3)
	ch := NewChannel(tr, WithRetryPolicy(policy))

	start := time.Now()
	err := ch.Send(context.Background(), "a@example.com", "s", "b")
	elapsed := time.Since(start)

	require.Error(t, err)
	// 20ms after attempt 1, 40ms after attempt 2
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	tr.AssertNumberOfCalls(t, "SendMail", 3)
}

func TestChannel_ContextCanceledDuringBackoff(t *testing.T) {
	tr := newMockTransport()
	tr.On("Verify", mock.Anything).Return(nil)
	tr.On("SendMail", mock.Anything, mock.Anything).Return(errConnRefused)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ch := NewChannel(tr, WithRetryPolicy(errors.DefaultDeliveryPolicy()))
	err := ch.Send(ctx, "a@example.com", "s", "b")

	assert.Equal(t, errors.ErrDurableCanceled, errors.GetCode(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	tr.AssertNumberOfCalls(t, "SendMail", 1)
}
