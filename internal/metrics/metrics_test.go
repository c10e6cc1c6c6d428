package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimer(t *testing.T) {
	tm := StartTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, tm.Duration(), 2*time.Millisecond)
}

func TestObserveGateway(t *testing.T) {
	before := testutil.CollectAndCount(GatewayCalls)
	StartTimer().ObserveGateway("test_provider", "charge", OutcomeOK)
	assert.Equal(t, before+1, testutil.CollectAndCount(GatewayCalls))
}

func TestWebhookUnknownOrderCounter(t *testing.T) {
	WebhookUnknownOrder.WithLabelValues("mercadopago_test").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(WebhookUnknownOrder.WithLabelValues("mercadopago_test")))
}
