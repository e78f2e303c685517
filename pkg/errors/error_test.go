package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotifyError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrInvalidConfig, "invalid configuration"),
			expected: "CON001: invalid configuration",
		},
		{
			name:     "with platform",
			err:      New(ErrDurableSendFailed, "send failed").WithPlatform("smtp"),
			expected: "DUR001: send failed (platform: smtp)",
		},
		{
			name:     "with details and cause",
			err:      Wrap(fmt.Errorf("connection refused"), ErrDurableHandshake, "verify failed").WithDetails("attempt 1"),
			expected: "DUR002: verify failed: attempt 1: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestKindHelpers(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := fmt.Errorf("dispatch: %w", Wrap(cause, ErrRealtimeBroadcast, "broadcast failed").AsPartial())

	assert.True(t, IsRealtime(wrapped))
	assert.True(t, IsPartial(wrapped))
	assert.False(t, IsDurable(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, New(ErrRealtimeBroadcast, ""))
	assert.Equal(t, ErrRealtimeBroadcast, GetCode(wrapped))

	assert.True(t, IsValidation(New(ErrValidationFailed, "x")))
	assert.True(t, IsCache(New(ErrCacheWrite, "x")))
	assert.True(t, IsProtocol(New(ErrInvalidMessageType, "x")))
	assert.True(t, IsConfiguration(New(ErrNotConfigured, "x")))
	assert.False(t, IsPartial(cause))
	assert.Equal(t, Code(""), GetCode(cause))
}

func TestDefaultRetryable(t *testing.T) {
	assert.True(t, New(ErrDurableSendFailed, "").IsRetryable())
	assert.True(t, New(ErrDurableHandshake, "").IsRetryable())
	assert.False(t, New(ErrInvalidRecipient, "").IsRetryable())
	assert.False(t, New(ErrValidationFailed, "").IsRetryable())
	assert.True(t, New(ErrInvalidRecipient, "").WithRetryable(true).IsRetryable())
}

func TestNotifyError_MarshalJSON(t *testing.T) {
	err := Wrap(stderrors.New("dial tcp: refused"), ErrDurableSendFailed, "send failed").WithAttemptCount(3)

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "DUR001", decoded["code"])
	assert.Equal(t, "DUR", decoded["kind"])
	assert.Equal(t, "dial tcp: refused", decoded["cause_message"])
	assert.EqualValues(t, 3, decoded["attempt_count"])
}

func TestLinearBackoffPolicy(t *testing.T) {
	p := DefaultDeliveryPolicy()

	assert.Equal(t, 3, p.MaxAttempts())
	assert.Equal(t, time.Duration(0), p.RetryDelay(0))
	assert.Equal(t, time.Second, p.RetryDelay(1))
	assert.Equal(t, 2*time.Second, p.RetryDelay(2))
	assert.Greater(t, p.RetryDelay(2), p.RetryDelay(1))

	transient := stderrors.New("timeout")
	assert.True(t, p.ShouldRetry(transient, 1))
	assert.True(t, p.ShouldRetry(transient, 2))
	assert.False(t, p.ShouldRetry(transient, 3))
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.False(t, p.ShouldRetry(New(ErrInvalidRecipient, "bad address"), 1))

	capped := NewLinearBackoffPolicy(time.Second, 5*time.Second, 3*time.Second, 5)
	assert.Equal(t, 3*time.Second, capped.RetryDelay(4))

	assert.Equal(t, 1, NoDelayPolicy(0).MaxAttempts())
	assert.Zero(t, NoDelayPolicy(3).RetryDelay(2))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
