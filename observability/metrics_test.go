package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"escrowswap/core/events"
	"escrowswap/core/types"
	"escrowswap/native/listing"
)

var _ listing.Observer = (*ListingMetrics)(nil)

func TestListingMetricsObserve(t *testing.T) {
	m := newListingMetrics()
	m.ObserveOperation("listing_swap", "ok", 3*time.Millisecond)
	m.ObserveOperation("listing_swap", "swap", time.Millisecond)
	m.ObserveOperation("listing_swap", "", time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("listing_swap", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("listing_swap", "swap")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("listing_swap", "unknown")))

	var src, dest [20]byte
	src[19], dest[19] = 0xA0, 0xB0
	m.ObserveFill(src, dest, 5_000_000, 5_000)
	m.ObserveFill(src, dest, 5_000_000, 5_000)
	destLabel := assetLabel(dest)
	require.Equal(t, 2.0, testutil.ToFloat64(m.fills.WithLabelValues(assetLabel(src), destLabel)))
	require.Equal(t, 10_000_000.0, testutil.ToFloat64(m.volume.WithLabelValues(destLabel)))
	require.Equal(t, 10_000.0, testutil.ToFloat64(m.fees.WithLabelValues(destLabel)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *ListingMetrics
	m.ObserveOperation("listing_create", "ok", time.Millisecond)
	m.ObserveFill([20]byte{}, [20]byte{}, 1, 1)
	var rpc *moduleMetrics
	rpc.Observe("listing", "listing_get", 0, time.Millisecond)
	rpc.RecordThrottle("listing", "rate_limit")
}

func TestEventCounter(t *testing.T) {
	counter := Events().emitted.WithLabelValues("listing.filled")
	before := testutil.ToFloat64(counter)
	EventCounter{}.Emit(events.Typed{Payload: &types.Event{Type: "Listing.Filled"}})
	EventCounter{}.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}
