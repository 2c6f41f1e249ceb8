package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plateful/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

// Option customises middleware behaviour.
type Option func(*middlewareConfig)

// WithHeader overrides the header carrying the gateway's key.
func WithHeader(name string) Option {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL sets how long recorded acknowledgements are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger injects the logger for store failures.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware deduplicates gateway callbacks that carry an idempotency key.
// The first attempt with a key runs the handler and records the
// acknowledgement; retries replay it. POSTs without the key pass through
// undeduplicated, since the service layer already tolerates replays.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("malformed_body", "unable to read request body", http.StatusBadRequest))
				return
			}
			fingerprint := Fingerprint(r.Method, r.URL.Path, body)

			outcome, rec, err := store.Begin(r.Context(), key, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_key_reused", "idempotency key was already used for a different request", http.StatusConflict))
				return
			case err != nil:
				// A store outage must not hold up payment confirmation; the
				// callback handlers tolerate duplicates on their own.
				cfg.logger.Warn("idempotency store unavailable, processing without dedup", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			switch outcome {
			case OutcomeReplay:
				writeReplay(w, rec)
				return
			case OutcomeInFlight:
				httpx.WriteError(r.Context(), w, httpx.NewError("idempotency_in_progress", "an earlier attempt with this idempotency key is still processing", http.StatusConflict))
				return
			}

			recorder := &captureWriter{next: w}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode() >= http.StatusInternalServerError {
				// Let the gateway retry a failed attempt from scratch.
				if err := store.Abandon(r.Context(), key); err != nil {
					cfg.logger.Warn("idempotency key not released", zap.String("key", key), zap.Error(err))
				}
				return
			}

			rec = Record{
				Key:         key,
				Fingerprint: fingerprint,
				StatusCode:  recorder.statusCode(),
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        recorder.body.Bytes(),
				StoredAt:    cfg.clock().UTC(),
			}
			if err := store.Complete(r.Context(), rec, cfg.ttl); err != nil {
				// The response already went out; the worst case is one
				// re-processed retry.
				cfg.logger.Warn("idempotency acknowledgement not recorded", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func writeReplay(w http.ResponseWriter, rec Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(replayHeaderName, "true")
	status := rec.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rec.Body) > 0 {
		_, _ = w.Write(rec.Body)
	}
}

// captureWriter passes the response through to the client while keeping a
// copy for the store.
type captureWriter struct {
	next   http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.next.Header() }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.next.WriteHeader(status)
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(data)
	return c.next.Write(data)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
