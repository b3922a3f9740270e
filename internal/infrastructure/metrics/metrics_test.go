package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"opsdesk/internal/core/numbering"
)

func TestObserveAllocation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAllocation(numbering.KindInvoice, "ok", 2*time.Millisecond)
	m.ObserveAllocation(numbering.KindInvoice, "ok", 3*time.Millisecond)
	m.ObserveAllocation(numbering.KindQuote, "rejected", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.allocations.WithLabelValues("invoice", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocations.WithLabelValues("quote", "rejected")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.allocationDuration))
}

func TestObserveOverride(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOverride(numbering.KindCertificate, "rejected")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.overrides.WithLabelValues("certificate", "rejected")))
}

func TestTxRetryHook(t *testing.T) {
	m := New(prometheus.NewRegistry())

	hook := m.TxRetryHook("badger")
	hook()
	hook()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.txRetries.WithLabelValues("badger")))
}

func TestRegisterGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RegisterGauge("pool_acquired_conns", "Acquired connections.", func() float64 { return 7 })

	n, err := testutil.GatherAndCount(reg, "opsdesk_pool_acquired_conns")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
