package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThatInvalidSpecIsRejected(t *testing.T) {
	r := New(context.Background(), logging.NewLogger())

	err := r.Add("refresh", "every now and then", func(context.Context) {})
	assert.ErrorContains(t, err, "refresh")
	assert.Equal(t, 0, r.Len())
}

func TestThatSpecsWithAndWithoutSecondsAreAccepted(t *testing.T) {
	r := New(context.Background(), logging.NewLogger())

	require.NoError(t, r.Add("descriptor", "@every 10s", func(context.Context) {}))
	require.NoError(t, r.Add("minutes", "*/5 * * * *", func(context.Context) {}))
	require.NoError(t, r.Add("seconds", "*/30 * * * * *", func(context.Context) {}))

	assert.Equal(t, 3, r.Len())
}

func TestThatScheduledJobRuns(t *testing.T) {
	r := New(context.Background(), logging.NewLogger())

	ran := make(chan struct{}, 1)
	require.NoError(t, r.Add("tick", "@every 1s", func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	r.Start()
	defer r.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}
