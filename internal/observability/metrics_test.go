package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RankingRuns.WithLabelValues("success").Inc()
	m.CacheLookups.WithLabelValues("hit").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RankingRuns.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestRecordRankingRunSetsBucketGauges(t *testing.T) {
	RecordRankingRun("success", 20*time.Millisecond, 3, 5, 7)

	assert.Equal(t, 3.0, testutil.ToFloat64(DefaultMetrics.RankedTokens.WithLabelValues("BUY")))
	assert.Equal(t, 5.0, testutil.ToFloat64(DefaultMetrics.RankedTokens.WithLabelValues("WATCH")))
	assert.Equal(t, 7.0, testutil.ToFloat64(DefaultMetrics.RankedTokens.WithLabelValues("SELL")))
}
