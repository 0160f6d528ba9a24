package metrics

import (
	"testing"
	"time"

	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerMetrics(t *testing.T) {
	registry := NewRegistry()
	m := NewReconcilerMetrics(registry, logger.NewNop()).(*reconcilerMetrics)

	m.ObserveWebhook("stripe", "invoice.finalized", "processed", 20*time.Millisecond)
	m.ObserveWebhook("stripe", "invoice.finalized", "processed", 30*time.Millisecond)
	m.ObserveWebhook("stripe", "invoice.finalized", "duplicate", time.Millisecond)
	m.IncOutOfBandCharge("rejected")
	m.IncPlanLookup("cache")
	m.SetDependencyUp("postgres", true)
	m.SetDependencyUp("redis", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("stripe", "invoice.finalized", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("stripe", "invoice.finalized", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oobCharges.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planLookups.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dependencyUp.WithLabelValues("postgres")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.dependencyUp.WithLabelValues("redis")))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["webhook_processing_seconds"])
	assert.True(t, names["go_goroutines"])
}
