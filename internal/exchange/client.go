package exchange

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

// requestKind labels an outbound request for metrics. The pipeline does
// not gate on it: adapters run their liveness check (ensureLive) before
// their ticker requests, and orderbook-status requests are that check.
type requestKind string

const (
	kindTicker          requestKind = "ticker"
	kindOrderbookStatus requestKind = "orderbook_status"
)

// ErrOrderbookDown is returned when a venue's liveness predicate fails.
var ErrOrderbookDown = errors.New("orderbook is not live")

// CertificatePinError reports a TLS leaf certificate whose SHA-256
// fingerprint does not match the pinned value.
type CertificatePinError struct {
	Exchange currency.Exchange
	Got      string
	Want     string
}

func (e *CertificatePinError) Error() string {
	return fmt.Sprintf("certificate fingerprint mismatch for %s: got %s, pinned %s", e.Exchange, e.Got, e.Want)
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// JSONParseError reports an unparseable response body.
type JSONParseError struct {
	Err error
}

func (e *JSONParseError) Error() string { return fmt.Sprintf("parsing response JSON: %v", e.Err) }
func (e *JSONParseError) Unwrap() error { return e.Err }

// ErrRequestTimeout is returned when a request exceeds the API timeout.
var ErrRequestTimeout = errors.New("api request timed out")

// CertSource yields the currently pinned fingerprint for an exchange.
// Absence means pinning is not enforced for that venue.
type CertSource interface {
	Fingerprint(currency.Exchange) (string, bool)
}

// staticCertSource pins a single fingerprint at construction time.
type staticCertSource struct {
	exchange    currency.Exchange
	fingerprint string
}

func (s staticCertSource) Fingerprint(ex currency.Exchange) (string, bool) {
	if ex != s.exchange || s.fingerprint == "" {
		return "", false
	}
	return s.fingerprint, true
}

// StaticCertSource returns a CertSource holding one construction-time pin.
func StaticCertSource(ex currency.Exchange, fingerprint string) CertSource {
	return staticCertSource{exchange: ex, fingerprint: fingerprint}
}

// ClientConfig tunes the shared fetch pipeline.
type ClientConfig struct {
	// Timeout is the per-request API timeout.
	Timeout time.Duration
	// MaxRequestsPerSecond bounds the request rate to the venue.
	MaxRequestsPerSecond float64
}

// DefaultClientConfig mirrors the venue-friendly defaults used in
// production deployments.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:              5 * time.Second,
		MaxRequestsPerSecond: 2,
	}
}

// Client is the shared HTTP fetch pipeline. Every adapter request passes
// through certificate pinning, a per-venue circuit breaker, rate limiting,
// the API timeout and metric emission.
type Client struct {
	exchange currency.Exchange
	certs    CertSource
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewClient builds the pipeline for one venue. certs may be nil, in which
// case pinning is not enforced.
func NewClient(ex currency.Exchange, cfg ClientConfig, certs CertSource, m *metrics.Metrics, log zerolog.Logger) *Client {
	c := &Client{
		exchange: ex,
		certs:    certs,
		timeout:  cfg.Timeout,
		metrics:  m,
		log:      log.With().Str("component", "api_client").Str("exchange", string(ex)).Logger(),
	}

	st := gobreaker.Settings{Name: string(ex)}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(st)

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 2)

	c.http = &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				VerifyPeerCertificate: c.verifyPinnedCertificate,
			},
		},
	}
	return c
}

// verifyPinnedCertificate checks the leaf certificate's SHA-256
// fingerprint against the currently pinned value, if any. It runs in
// addition to standard chain verification.
func (c *Client) verifyPinnedCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	want, ok := c.pinnedFingerprint()
	if !ok {
		return nil
	}
	if len(rawCerts) == 0 {
		return &CertificatePinError{Exchange: c.exchange, Got: "", Want: want}
	}
	sum := sha256.Sum256(rawCerts[0])
	got := hex.EncodeToString(sum[:])
	if got != want {
		return &CertificatePinError{Exchange: c.exchange, Got: got, Want: want}
	}
	return nil
}

func (c *Client) pinnedFingerprint() (string, bool) {
	if c.certs == nil {
		return "", false
	}
	fp, ok := c.certs.Fingerprint(c.exchange)
	if !ok {
		return "", false
	}
	return normalizeFingerprint(fp), true
}

// normalizeFingerprint lowercases and strips separator colons so pins from
// different tooling compare equal.
func normalizeFingerprint(fp string) string {
	return strings.ToLower(strings.ReplaceAll(fp, ":", ""))
}

// GetJSON performs one GET through the full pipeline and decodes the
// response body into v.
func (c *Client) GetJSON(ctx context.Context, kind requestKind, url string, v any) error {
	start := time.Now()
	err := c.getJSON(ctx, url, v)
	outcome := classifyOutcome(err)
	c.metrics.ObserveAPIRequest(string(c.exchange), string(kind), outcome, time.Since(start))
	if err != nil {
		c.log.Debug().Err(err).Str("kind", string(kind)).Str("outcome", outcome).Msg("api request failed")
	}
	return err
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			var pinErr *CertificatePinError
			if errors.As(err, &pinErr) {
				return nil, pinErr
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrRequestTimeout
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return nil, &HTTPStatusError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrRequestTimeout
			}
			return nil, fmt.Errorf("reading response: %w", err)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return nil, &JSONParseError{Err: err}
		}
		return nil, nil
	})
	return err
}

// classifyOutcome maps pipeline errors onto the metric outcome label set.
func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRequestTimeout):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		var pinErr *CertificatePinError
		var statusErr *HTTPStatusError
		var parseErr *JSONParseError
		switch {
		case errors.As(err, &pinErr):
			return "cert_pin_mismatch"
		case errors.As(err, &statusErr):
			return "http_status"
		case errors.As(err, &parseErr):
			return "json_parse"
		default:
			return "network"
		}
	}
}
