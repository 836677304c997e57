package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "namereg"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,team=names")
	require.Equal(t, map[string]string{"api-key": "abc", "team": "names"}, got)
}

func TestShutdownStackRunsInReverse(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	stack := shutdownStack{
		func(context.Context) error { order = append(order, "traces"); return nil },
		func(context.Context) error { order = append(order, "metrics"); return boom },
	}
	err := stack.shutdown(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"metrics", "traces"}, order)
}
