package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWith(reg)

	c.RequestsTotal.WithLabelValues("/generate", "2xx").Inc()
	c.RequestsTotal.WithLabelValues("/generate", "2xx").Inc()
	c.AuthFailures.WithLabelValues("unknown_key").Inc()
	c.QuotaRejections.Inc()
	c.WebhookEvents.WithLabelValues("provisioned").Inc()
	c.PoolKeys.WithLabelValues("pro").Set(7)
	c.PoolExhaustions.WithLabelValues("pro").Inc()
	c.NotificationFailures.Inc()
	c.UpstreamErrors.Inc()

	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("/generate", "2xx")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.PoolKeys.WithLabelValues("pro")); got != 7 {
		t.Errorf("pool_keys = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.QuotaRejections); got != 1 {
		t.Errorf("quota_rejections_total = %v, want 1", got)
	}
}

func TestCollectorDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWith(reg)

	defer func() {
		if recover() == nil {
			t.Error("second NewWith on the same registry did not panic")
		}
	}()
	NewWith(reg)
}
