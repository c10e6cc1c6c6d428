package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// statusError is a non-2xx provider answer. It stays inside the wrapped
// chain for logs and is never shown to clients.
type statusError struct {
	Status int
	Body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider answered %d: %s", e.Status, truncate(e.Body, 512))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// apiClient is the HTTP plumbing shared by the gateway adapters.
type apiClient struct {
	provider   Provider
	httpClient *http.Client
	timeout    time.Duration
}

func newAPIClient(provider Provider, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &apiClient{
		provider:   provider,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

type call struct {
	op      string
	method  string
	url     string
	headers map[string]string
	in      any
	out     any
}

// do sends c and decodes a 2xx body into c.out. The request is detached
// from the caller's cancellation and bounded by the client timeout, so a
// dispatched charge is never abandoned half way. Transport errors,
// timeouts, 429 and 5xx are GatewayUnavailable; 404 is ErrPaymentNotFound.
func (a *apiClient) do(ctx context.Context, c call) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("provider", string(a.provider)),
		zap.String("operation", c.op),
	)
	timer := metrics.StartTimer()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	var body io.Reader
	if c.in != nil {
		b, err := json.Marshal(c.in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if c.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeUnavailable)
		log.Error("gateway request failed", zap.Error(err), zap.Duration("elapsed", timer.Duration()))
		return unavailable(a.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeUnavailable)
		log.Error("failed to read gateway response", zap.Error(err))
		return unavailable(a.provider, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if c.out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, c.out); err != nil {
				timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeUnavailable)
				log.Error("failed to decode gateway response", zap.Error(err), zap.ByteString("response", raw))
				return unavailable(a.provider, errors.Wrap(err, "decode response"))
			}
		}
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeOK)
		log.Debug("gateway call ok", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", timer.Duration()))
		return nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeUnavailable)
		log.Error("gateway returned server error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return unavailable(a.provider, &statusError{Status: resp.StatusCode, Body: raw})

	case resp.StatusCode == http.StatusNotFound:
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeError)
		log.Warn("gateway resource not found", zap.ByteString("response", raw))
		return apperr.Wrap(apperr.NotFound, &statusError{Status: resp.StatusCode, Body: raw}, ErrPaymentNotFound.Message)

	default:
		timer.ObserveGateway(string(a.provider), c.op, metrics.OutcomeError)
		log.Warn("gateway refused request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", raw),
		)
		return apperr.Wrap(apperr.InvalidInput, &statusError{Status: resp.StatusCode, Body: raw}, ErrGatewayBadRequest.Message)
	}
}

// providerStatus returns the HTTP status of a refused call, or 0.
func providerStatus(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// jsonAmount renders money as a JSON number with the given places.
func jsonAmount(d decimal.Decimal, places int32) json.Number {
	return json.Number(d.StringFixed(places))
}

// toCents converts a major-unit amount to integer cents.
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
