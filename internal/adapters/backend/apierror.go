package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// defaultRetryAfterSec es el hint que damos al caller cuando el server
// responde 429 sin header Retry-After.
const defaultRetryAfterSec = 60

// APIError is the structured error every exhausted request resolves to.
// Status is the HTTP status, or 0 for network-level failures where no
// response was received. Message is never empty.
type APIError struct {
	Status        int
	Message       string
	RequestID     string
	ErrorCode     string
	RetryAfterSec int
	Remediation   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend: network error: %s", e.Message)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("backend: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("backend: %d %s", e.Status, e.Message)
}

// Retryable reports whether the status is in the always-retry set.
func (e *APIError) Retryable() bool {
	return retryableStatus(e.Status, false)
}

// errorEnvelope cubre las dos formas de error que manda el backend:
//
//	{ "error": { "message", "request_id", "error_code", "remediation" } }
//	{ "detail": "texto" }  o  { "detail": { "message", "request_id", "error_code" } }
//
// detail llega como RawMessage porque puede ser string u objeto.
type errorEnvelope struct {
	Error  *errorBody      `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

type errorBody struct {
	Message     string `json:"message"`
	RequestID   string `json:"request_id"`
	ErrorCode   string `json:"error_code"`
	Remediation string `json:"remediation"`
}

// parseAPIError extracts a structured error from a failed response, probing
// each known envelope shape and falling back to raw body text, then to a
// generic message. fallbackRequestID is the client-generated correlation id,
// used when the server does not echo one back.
func parseAPIError(resp *http.Response, fallbackRequestID string) *APIError {
	apiErr := &APIError{
		Status:    resp.StatusCode,
		RequestID: fallbackRequestID,
	}

	if ra := parseRetryAfter(resp.Header); ra > 0 {
		apiErr.RetryAfterSec = int(ra / time.Second)
	} else if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfterSec = defaultRetryAfterSec
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case env.Error != nil && env.Error.Message != "":
			apiErr.Message = env.Error.Message
			apiErr.ErrorCode = env.Error.ErrorCode
			apiErr.Remediation = env.Error.Remediation
			if env.Error.RequestID != "" {
				apiErr.RequestID = env.Error.RequestID
			}
			return apiErr
		case len(env.Detail) > 0:
			var s string
			if json.Unmarshal(env.Detail, &s) == nil && s != "" {
				apiErr.Message = s
				return apiErr
			}
			var body errorBody
			if json.Unmarshal(env.Detail, &body) == nil && body.Message != "" {
				apiErr.Message = body.Message
				apiErr.ErrorCode = body.ErrorCode
				if body.RequestID != "" {
					apiErr.RequestID = body.RequestID
				}
				return apiErr
			}
		}
	}

	if txt := strings.TrimSpace(string(raw)); txt != "" {
		apiErr.Message = txt
		return apiErr
	}

	apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	return apiErr
}

// parseRetryAfter lee el header Retry-After en segundos. Devuelve 0 si no
// está presente o no es numérico.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryableStatus decide si un status amerita reintento. 500 solo se
// reintenta para la clase de endpoints de ejecución de comandos (ventanas
// cortas de restart del backend), para no enmascarar 500s genuinos en el
// resto de la API.
func retryableStatus(status int, retry500 bool) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	case http.StatusInternalServerError:
		return retry500
	}
	return false
}
