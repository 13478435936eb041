package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistryReusesCollectors(t *testing.T) {
	a := NewComponentRegistry("", "registry_test").NewCounter(prometheus.CounterOpts{Name: "events_total", Help: "h"})
	b := NewComponentRegistry("", "registry_test").NewCounter(prometheus.CounterOpts{Name: "events_total", Help: "h"})

	a.Inc()
	b.Inc()
	require.Equal(t, float64(2), testutil.ToFloat64(a))
}

func TestComponentRegistryNamespacing(t *testing.T) {
	g := NewComponentRegistry("", "registry_test").NewGauge(prometheus.GaugeOpts{Name: "depth", Help: "h"})
	g.Set(3)

	families, err := GetRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "saya_registry_test_depth" {
			found = true
		}
	}
	require.True(t, found)
}
