package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveWebhookEvent("transaction_created")
	m.ObserveWebhookEvent("transaction_created")
	m.ObserveAuthorization(false, "card is frozen", 3*time.Millisecond)
	m.ObserveLedgerMutation("send", "ok")
	m.ObserveReconciliation("redis", "escalated")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("transaction_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authorizationDecisions.WithLabelValues("declined", "card is frozen")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerMutations.WithLabelValues("send", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliationCases.WithLabelValues("redis", "escalated")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveWebhookEvent("x")
	m.ObserveWebhookRejection("signature")
	m.ObserveAuthorization(true, "", time.Millisecond)
	m.ObserveLedgerMutation("send", "ok")
	m.ObserveReconciliation("kafka", "escalated")
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveWebhookRejection("signature")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `walletcore_webhook_rejections_total{reason="signature"} 1`))
}
