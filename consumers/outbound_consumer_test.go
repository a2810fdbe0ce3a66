package consumers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func TestAttemptFromHeaders(t *testing.T) {
	require.Equal(t, 0, attemptFromHeaders(nil))
	require.Equal(t, 0, attemptFromHeaders(amqp.Table{}))
	require.Equal(t, 2, attemptFromHeaders(amqp.Table{"attempt": 2}))
	require.Equal(t, 2, attemptFromHeaders(amqp.Table{"attempt": int32(2)}))
	require.Equal(t, 2, attemptFromHeaders(amqp.Table{"attempt": int64(2)}))
	require.Equal(t, 2, attemptFromHeaders(amqp.Table{"attempt": float64(2)}))
	require.Equal(t, 0, attemptFromHeaders(amqp.Table{"attempt": "2"}))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tc := range cases {
		err := &services.ProviderError{Provider: "META", StatusCode: tc.status}
		require.Equal(t, tc.want, isRetryable(err), "status %d", tc.status)
	}

	require.False(t, isRetryable(errors.New("inbox not found")))
	require.True(t, isRetryable(fmt.Errorf("send failed: %w",
		&services.ProviderError{Provider: "META", StatusCode: 502})))
}
