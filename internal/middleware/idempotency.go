package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/forgo/canvas/internal/model"
)

// ReplayCache remembers responses to requests carrying an Idempotency-Key so
// that a client retrying a purchase sees the original outcome instead of a
// duplicate rejection
type ReplayCache struct {
	mu       sync.Mutex
	entries  map[string]*replayEntry
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

type replayEntry struct {
	fingerprint string
	status      int
	header      http.Header
	body        []byte
	expiresAt   time.Time
	done        chan struct{}
}

func (e *replayEntry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// ReplayConfig holds configuration for the replay cache
type ReplayConfig struct {
	TTL     time.Duration // How long a response is replayed (default 24h)
	Cleanup time.Duration // Cleanup interval (default 1h)
}

// NewReplayCache creates a replay cache and starts its cleanup loop
func NewReplayCache(cfg ReplayConfig) *ReplayCache {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Cleanup == 0 {
		cfg.Cleanup = time.Hour
	}

	c := &ReplayCache{
		entries:  make(map[string]*replayEntry),
		ttl:      cfg.TTL,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go c.cleanupLoop(cfg.Cleanup)
	return c
}

// Stop stops the cleanup goroutine
func (c *ReplayCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *ReplayCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stopChan:
			return
		}
	}
}

func (c *ReplayCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if e.finished() && e.expiresAt.Before(now) {
			delete(c.entries, key)
		}
	}
}

// claim returns the entry for key. owner is true when the caller must run
// the request and complete the entry.
func (c *ReplayCache) claim(key, fingerprint string) (entry *replayEntry, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && (!e.finished() || e.expiresAt.After(c.now())) {
		return e, false
	}
	e := &replayEntry{fingerprint: fingerprint, done: make(chan struct{})}
	c.entries[key] = e
	return e, true
}

// complete stores the recorded response. A request that produced no
// response is forgotten so the key can be retried.
func (c *ReplayCache) complete(key string, e *replayEntry, rec *recordingWriter) {
	c.mu.Lock()
	if rec.status == 0 {
		delete(c.entries, key)
		c.mu.Unlock()
		close(e.done)
		return
	}
	e.status = rec.status
	e.header = rec.Header().Clone()
	e.body = rec.body.Bytes()
	e.expiresAt = c.now().Add(c.ttl)
	c.mu.Unlock()
	close(e.done)
}

// recordingWriter captures a response while passing it through
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the first response for a repeated Idempotency-Key.
// Keys are scoped to the session user and path. Reusing a key with a
// different body is a 422. A retry arriving while the first request is
// still running waits for it.
func Idempotency(cache *ReplayCache) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				model.NewBadRequestError("unreadable request body").WriteJSON(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			principal := GetUserID(r.Context())
			if principal == "" {
				principal = clientIP(r)
			}
			key := digest(principal, idemKey, r.URL.Path)
			fingerprint := digest(string(body))

			entry, owner := cache.claim(key, fingerprint)
			if !owner {
				select {
				case <-entry.done:
				case <-r.Context().Done():
					return
				}
				if entry.fingerprint != fingerprint {
					model.NewValidationError([]model.FieldError{{
						Field:   "Idempotency-Key",
						Message: "key was already used with a different request body",
					}}).WriteJSON(w)
					return
				}
				if entry.status == 0 {
					model.NewConflictError("original request did not complete; retry").WriteJSON(w)
					return
				}
				replay(w, entry)
				return
			}

			rec := &recordingWriter{ResponseWriter: w}
			defer cache.complete(key, entry, rec)
			next.ServeHTTP(rec, r)
		})
	}
}

func replay(w http.ResponseWriter, e *replayEntry) {
	for k, values := range e.header {
		if _, set := w.Header()[k]; set {
			continue
		}
		w.Header()[k] = values
	}
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(e.status)
	_, _ = w.Write(e.body)
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
