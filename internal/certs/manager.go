// Package certs maintains the pinned TLS certificate fingerprint map:
// seeded from a compiled-in JSON document and refreshed in place from a
// configured URL without tearing concurrent readers.
package certs

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/celo-org/celo-oracle/internal/currency"
	"github.com/celo-org/celo-oracle/internal/metrics"
)

//go:embed fingerprints.json
var seedJSON []byte

// Manager holds the exchange → SHA-256 fingerprint mapping. Readers take a
// snapshot of the whole map; the refresher swaps it atomically.
type Manager struct {
	current    atomic.Pointer[map[currency.Exchange]string]
	refreshURL string
	interval   time.Duration
	http       *http.Client
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// New seeds the manager from the embedded fingerprint document.
// refreshURL may be empty, in which case the seed mapping stays live for
// the life of the process.
func New(refreshURL string, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) (*Manager, error) {
	seed, err := parseFingerprintMap(seedJSON)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded fingerprint seed: %w", err)
	}
	mgr := &Manager{
		refreshURL: refreshURL,
		interval:   interval,
		http:       &http.Client{Timeout: 10 * time.Second},
		metrics:    m,
		log:        log.With().Str("component", "cert_manager").Logger(),
	}
	mgr.current.Store(&seed)
	return mgr, nil
}

// Fingerprint returns the pinned fingerprint for an exchange, if any.
// Implements the adapter framework's CertSource.
func (m *Manager) Fingerprint(ex currency.Exchange) (string, bool) {
	snapshot := m.current.Load()
	fp, ok := (*snapshot)[ex]
	return fp, ok
}

// Run polls the refresh URL until ctx is done. Refresh failures are logged
// and the previous mapping remains live.
func (m *Manager) Run(ctx context.Context) error {
	if m.refreshURL == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.metrics.CertRefreshes.WithLabelValues("error").Inc()
				m.log.Warn().Err(err).Msg("certificate fingerprint refresh failed, keeping previous mapping")
			} else {
				m.metrics.CertRefreshes.WithLabelValues("success").Inc()
			}
		}
	}
}

// Refresh fetches the fingerprint document and swaps the mapping in one
// atomic store.
func (m *Manager) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.refreshURL, nil)
	if err != nil {
		return err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fingerprint endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	parsed, err := parseFingerprintMap(body)
	if err != nil {
		return err
	}
	m.current.Store(&parsed)
	m.log.Debug().Int("entries", len(parsed)).Msg("certificate fingerprint map refreshed")
	return nil
}

// parseFingerprintMap decodes and validates a fingerprint document.
func parseFingerprintMap(raw []byte) (map[currency.Exchange]string, error) {
	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fingerprint document is not a JSON object of strings: %w", err)
	}
	out := make(map[currency.Exchange]string, len(doc))
	for name, fp := range doc {
		ex, err := currency.ParseExchange(name)
		if err != nil {
			return nil, fmt.Errorf("fingerprint document: %w", err)
		}
		if fp == "" {
			return nil, fmt.Errorf("fingerprint document: empty fingerprint for %s", name)
		}
		out[ex] = fp
	}
	return out, nil
}
