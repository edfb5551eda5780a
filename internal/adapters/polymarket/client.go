package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB /prices-history: 1000/10s → 600/10s → 60/s
	historyRatePerSec = 60

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de solo lectura para los históricos de Polymarket,
// con rate limiting y retries.
type Client struct {
	http           *http.Client
	clobBase       string
	gammaBase      string
	historyLimiter *rate.Limiter
	gammaLimiter   *rate.Limiter
	retryWait      time.Duration
}

// NewClient crea un Client con los base URLs dados.
// Si clobBase o gammaBase están vacíos, usa los URLs de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:           &http.Client{Timeout: 15 * time.Second},
		clobBase:       clobBase,
		gammaBase:      gammaBase,
		historyLimiter: rate.NewLimiter(historyRatePerSec, 10),
		gammaLimiter:   rate.NewLimiter(gammaRatePerSec, 10),
		retryWait:      baseRetryWait,
	}
}

// WithRetryWait cambia la espera base entre reintentos.
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// errRetryable marca fallos transitorios: error de transporte, 429 o 5xx.
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

// get hace GET de rawURL y decodifica el JSON en out. Los fallos transitorios
// se reintentan hasta maxRetries veces con espera 2^n × retryWait (sin jitter);
// un 4xx distinto de 429 corta en el primer intento.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, rawURL string, out any) error {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if werr := c.backoff(ctx, attempt-1); werr != nil {
				return fmt.Errorf("GET %s: %w", path, werr)
			}
		}
		if werr := limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("GET %s: rate limiter: %w", path, werr)
		}

		err = c.fetchJSON(ctx, rawURL, out)
		var retry errRetryable
		if !errors.As(err, &retry) {
			break
		}
		slog.Warn("polymarket: transient error, retrying",
			"path", path,
			"attempt", attempt+1,
			"err", err,
		)
	}
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

// fetchJSON hace un único intento. Devuelve errRetryable si vale la pena reintentar.
func (c *Client) fetchJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errRetryable{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return errRetryable{fmt.Errorf("server status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// backoff espera 2^n × retryWait o hasta que se cancele ctx.
func (c *Client) backoff(ctx context.Context, n int) error {
	t := time.NewTimer(c.retryWait << n)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
