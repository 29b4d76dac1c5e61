// Package helpers provides a fake publishing backend and an application
// harness for the exposure-sync integration suite.
package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/proxtrace/exposure-sync/internal/backend"
)

// BatchFunc decides the answer for the bucket of dayStart. A nil body with
// status 200 is served as 204 No Content.
type BatchFunc func(dayStart time.Time) (int, []byte)

// FakeBackend serves daily buckets and accepts key uploads
type FakeBackend struct {
	server *httptest.Server

	mu       sync.Mutex
	batch    BatchFunc
	buckets  []time.Time
	uploads  []backend.ExposeeRequest
	authz    []string
	response string
}

// NewFakeBackend starts a backend that answers every bucket with 204
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		batch: func(time.Time) (int, []byte) { return http.StatusOK, nil },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bucket/{timestamp}", b.handleBucket)
	mux.HandleFunc("POST /v1/gaen/exposed", b.handleExposed)
	b.server = httptest.NewServer(mux)
	return b
}

// URL returns the base URL of the backend
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// Close shuts the backend down
func (b *FakeBackend) Close() {
	b.server.Close()
}

// WithBatches replaces the bucket answers
func (b *FakeBackend) WithBatches(fn BatchFunc) *FakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batch = fn
	return b
}

// WithDelayedKeyToken makes key uploads answer with token in the Authorization header
func (b *FakeBackend) WithDelayedKeyToken(token string) *FakeBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.response = token
	return b
}

// Reset clears the recorded requests
func (b *FakeBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = nil
	b.uploads = nil
	b.authz = nil
}

// Buckets returns the day starts of every bucket requested so far
func (b *FakeBackend) Buckets() []time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Time(nil), b.buckets...)
}

// Uploads returns the key uploads received so far
func (b *FakeBackend) Uploads() []backend.ExposeeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.ExposeeRequest(nil), b.uploads...)
}

// Authorizations returns the Authorization header of every upload
func (b *FakeBackend) Authorizations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authz...)
}

func (b *FakeBackend) handleBucket(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		http.Error(w, "invalid bucket timestamp", http.StatusBadRequest)
		return
	}
	dayStart := time.UnixMilli(ms).UTC()

	b.mu.Lock()
	b.buckets = append(b.buckets, dayStart)
	fn := b.batch
	b.mu.Unlock()

	code, body := fn(dayStart)
	w.Header().Set(backend.PublishedUntilHeader, strconv.FormatInt(time.Now().UnixMilli(), 10))
	switch {
	case code != http.StatusOK:
		w.WriteHeader(code)
	case body == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func (b *FakeBackend) handleExposed(w http.ResponseWriter, r *http.Request) {
	var req backend.ExposeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, req)
	b.authz = append(b.authz, r.Header.Get("Authorization"))
	token := b.response
	b.mu.Unlock()

	if token != "" {
		w.Header().Set("Authorization", "Bearer "+token)
	}
	w.WriteHeader(http.StatusOK)
}

// ExposureBatch builds a fixture batch with one match that lasted minutes in
// the low attenuation bucket, daysAgo days before the batch day
func ExposureBatch(minutes, daysAgo int) []byte {
	return []byte(fmt.Sprintf(
		`{"matches":[{"attenuationDurations":[%d,0,0],"daysSinceLastExposure":%d,"matchedKeyCount":1}]}`,
		minutes, daysAgo))
}

// IsDay reports whether dayStart falls on the UTC date of t
func IsDay(dayStart, t time.Time) bool {
	return dayStart.UTC().Format(time.DateOnly) == t.UTC().Format(time.DateOnly)
}
