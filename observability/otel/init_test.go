package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,broken, =empty,tenant=escrow")
	require.Equal(t, map[string]string{
		"authorization": "Bearer x",
		"tenant":        "escrow",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "listingd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer("listingd"))
}

func TestSamplerBounds(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOn")
	require.Contains(t, sampler(1.5).Description(), "AlwaysOn")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
