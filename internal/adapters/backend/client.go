package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

const (
	defaultMaxRetries = 2 // 3 intentos en total

	// Backoff: min(1s * 2^attempt + jitter(0..500ms), 15s), salvo que el
	// server mande Retry-After — en ese caso se honra exacto.
	backoffBase = 1 * time.Second
	backoffCap  = 15 * time.Second
	jitterMax   = 500 * time.Millisecond

	// Rate limit conservador; el backend corta a 429 bastante por encima.
	requestsPerSec = 20
)

// Config ajusta el transport. Los ceros toman los defaults de arriba.
type Config struct {
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
}

// Client es el HTTP client del run backend con rate limiting y retries.
// Todos los errores definitivos salen como *APIError, nunca como error pelado
// sin contexto.
type Client struct {
	http       *http.Client
	base       string
	maxRetries int
	limiter    *rate.Limiter

	// wait es inyectable en tests para no dormir de verdad.
	wait func(ctx context.Context, d time.Duration)
}

// NewClient crea un Client contra el base URL dado.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		base:       cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(requestsPerSec, 10),
		wait:       sleepCtx,
	}
}

// RunStatus implementa ports.StatusProvider.
func (c *Client) RunStatus(ctx context.Context, runID string) (domain.Run, error) {
	var out runStatusResponse
	if err := c.do(ctx, http.MethodGet, "/runs/status/"+runID, nil, &out, false); err != nil {
		return domain.Run{}, err
	}
	run := out.toDomain()
	if run.ID == "" {
		// éxito sintético (body vacío o no parseable): conservar la identidad
		run.ID = runID
	}
	return run, nil
}

// FillStatus implementa ports.FillProvider.
func (c *Client) FillStatus(ctx context.Context, orderID string) (domain.Fill, error) {
	var out fillStatusResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID+"/fill-status", nil, &out, false); err != nil {
		return domain.Fill{}, err
	}
	fill := out.toDomain()
	if fill.OrderID == "" {
		fill.OrderID = orderID
	}
	return fill, nil
}

// ExecuteCommand submits a trade command and returns the run id assigned by
// the backend. This is the one endpoint class where a 500 is retried: it
// absorbs short backend-restart windows without masking genuine 500s on the
// rest of the API.
func (c *Client) ExecuteCommand(ctx context.Context, command string) (string, error) {
	var out executeCommandResponse
	if err := c.do(ctx, http.MethodPost, "/commands/execute", executeCommandRequest{Command: command}, &out, true); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// do ejecuta un request con retries. Reintenta en 429/502/503/504 (y 500 si
// retry500), y en fallos de red puros. Un 2xx con body no parseable degrada
// a éxito sintético: out queda en cero y el caller sigue vivo.
func (c *Client) do(ctx context.Context, method, path string, body, out any, retry500 bool) error {
	reqID := uuid.New().String()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: marshal body: %w", err)
		}
		payload = b
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("backend: rate limiter: %w", err)
		}

		resp, err := c.send(ctx, method, path, payload, reqID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == c.maxRetries {
				return &APIError{Status: 0, Message: err.Error(), RequestID: reqID}
			}
			c.wait(ctx, c.backoff(attempt, 0))
			continue
		}

		if retryableStatus(resp.StatusCode, retry500) {
			if attempt == c.maxRetries {
				defer resp.Body.Close()
				return parseAPIError(resp, reqID)
			}
			retryAfter := parseRetryAfter(resp.Header)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			slog.Warn("backend: retryable status",
				"status", resp.StatusCode, "path", path, "attempt", attempt+1)
			c.wait(ctx, c.backoff(attempt, retryAfter))
			continue
		}

		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return parseAPIError(resp, reqID)
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if out == nil {
			return nil
		}
		if readErr != nil || len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, out) != nil {
			// Body vacío o basura con status 2xx: típico hipo de proxy.
			// No es un fallo de aplicación.
			slog.Warn("backend: unparseable success body, degrading to empty result",
				"path", path, "request_id", reqID)
			return nil
		}
		return nil
	}

	return &APIError{Status: 0, Message: "retry budget exhausted", RequestID: reqID}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, reqID string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// backoff calcula la espera antes del siguiente intento.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	d := backoffBase*(1<<attempt) + time.Duration(rand.Int63n(int64(jitterMax)))
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// sleepCtx espera la duración dada respetando el contexto.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
