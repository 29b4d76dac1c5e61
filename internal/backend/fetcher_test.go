package backend

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/status"
)

var (
	calendar = daybucket.NewCalendar(time.UTC)
	// 2020-06-01
	testDay        = daybucket.DayID(18414)
	publishedUntil = time.Date(2020, 6, 2, 6, 0, 0, 0, time.UTC)
)

func newFetcher(t *testing.T, handler http.HandlerFunc, opts ...FetcherOption) *Fetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return NewFetcher(httpclient.NewDefaultClient(5*time.Second), server.URL+"/", calendar, opts...)
}

func TestBucketURL(t *testing.T) {
	t.Parallel()

	f := NewFetcher(httpclient.NewDefaultClient(0), "https://backend.example/v1/", calendar)
	assert.Equal(t, "https://backend.example/v1/bucket/1590969600000", f.BucketURL(testDay))
}

func TestFetchClassification(t *testing.T) {
	t.Parallel()

	millis := "1591077600000"

	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantKind      Kind
		wantErrorKind status.ErrorKind
		wantBody      string
	}{
		{
			name: "content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(PublishedUntilHeader, millis)
				_, _ = w.Write([]byte("batch"))
			},
			wantKind: KindContent,
			wantBody: "batch",
		},
		{
			name: "no content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(PublishedUntilHeader, millis)
				w.WriteHeader(http.StatusNoContent)
			},
			wantKind: KindNoContent,
		},
		{
			name: "missing published until",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("batch"))
			},
			wantKind:      KindPermanent,
			wantErrorKind: status.ErrorKindMalformed,
		},
		{
			name: "garbage published until",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(PublishedUntilHeader, "yesterday")
				w.WriteHeader(http.StatusNoContent)
			},
			wantKind:      KindPermanent,
			wantErrorKind: status.ErrorKindMalformed,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantKind:      KindTransient,
			wantErrorKind: status.ErrorKindServer,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantKind:      KindTransient,
			wantErrorKind: status.ErrorKindServer,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantKind:      KindPermanent,
			wantErrorKind: status.ErrorKindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := newFetcher(t, tt.handler).Fetch(context.Background(), testDay)
			assert.Equal(t, tt.wantKind, res.Kind, "error: %v", res.Err)
			assert.Equal(t, testDay, res.Day)
			assert.Equal(t, tt.wantErrorKind, res.ErrorKind)
			if tt.wantKind.IsSuccess() {
				require.NoError(t, res.Err)
				assert.True(t, res.PublishedUntil.Equal(publishedUntil))
				assert.Equal(t, tt.wantBody, string(res.Body))
			} else {
				require.Error(t, res.Err)
			}
		})
	}
}

func TestFetchRequestsDayTimestamp(t *testing.T) {
	t.Parallel()

	var path string
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set(PublishedUntilHeader, "1591077600000")
		w.WriteHeader(http.StatusNoContent)
	})

	res := f.Fetch(context.Background(), testDay)
	require.Equal(t, KindNoContent, res.Kind)
	assert.Equal(t, "/bucket/1590969600000", path)
}

func TestFetchNetworkFailureIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	res := NewFetcher(httpclient.NewDefaultClient(time.Second), url, calendar).Fetch(context.Background(), testDay)
	assert.Equal(t, KindTransient, res.Kind)
	assert.Equal(t, status.ErrorKindNetwork, res.ErrorKind)
}

func TestFetchCancelledIsTransient(t *testing.T) {
	t.Parallel()

	f := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.Fetch(ctx, testDay)
	assert.Equal(t, KindTransient, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestFetchClockSkew(t *testing.T) {
	t.Parallel()

	handler := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(PublishedUntilHeader, "1591077600000")
		w.WriteHeader(http.StatusNoContent)
	}

	tests := []struct {
		name     string
		offset   time.Duration
		wantKind Kind
	}{
		{name: "in sync", offset: 0, wantKind: KindNoContent},
		{name: "slightly off", offset: 5 * time.Minute, wantKind: KindNoContent},
		{name: "device ahead", offset: 2 * time.Hour, wantKind: KindTransient},
		{name: "device behind", offset: -2 * time.Hour, wantKind: KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFetcher(t, handler,
				WithMaxClockSkew(10*time.Minute),
				WithDeviceClock(func() time.Time { return time.Now().Add(tt.offset) }),
			)
			res := f.Fetch(context.Background(), testDay)
			assert.Equal(t, tt.wantKind, res.Kind)
			if tt.wantKind == KindTransient {
				assert.Equal(t, status.ErrorKindTiming, res.ErrorKind)
			}
		})
	}
}

func signBody(t *testing.T, key *ecdsa.PrivateKey, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"content-hash": base64.StdEncoding.EncodeToString(sum[:]),
		"hash-alg":     "sha-256",
		"iss":          "dp3t",
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestFetchSignature(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body := []byte("signed batch")

	tests := []struct {
		name      string
		signature string
		wantKind  Kind
	}{
		{name: "valid", signature: signBody(t, key, body), wantKind: KindContent},
		{name: "missing", signature: "", wantKind: KindPermanent},
		{name: "other key", signature: signBody(t, other, body), wantKind: KindPermanent},
		{name: "other body", signature: signBody(t, key, []byte("tampered")), wantKind: KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(PublishedUntilHeader, "1591077600000")
				if tt.signature != "" {
					w.Header().Set(SignatureHeader, tt.signature)
				}
				_, _ = w.Write(body)
			}, WithSignatureVerifier(NewSignatureVerifier(&key.PublicKey)))

			res := f.Fetch(context.Background(), testDay)
			assert.Equal(t, tt.wantKind, res.Kind)
			if tt.wantKind == KindPermanent {
				assert.Equal(t, status.ErrorKindSignature, res.ErrorKind)
				assert.ErrorIs(t, res.Err, ErrInvalidSignature)
			}
		})
	}
}

func TestLoadSignatureVerifier(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bucket.pub")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0600))

	v, err := LoadSignatureVerifier(path)
	require.NoError(t, err)

	body := []byte("batch")
	require.NoError(t, v.Verify(body, signBody(t, key, body)))

	_, err = LoadSignatureVerifier(filepath.Join(t.TempDir(), "missing.pub"))
	require.Error(t, err)
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "content", KindContent.String())
	assert.Equal(t, "no_content", KindNoContent.String())
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "permanent", KindPermanent.String())
	assert.True(t, KindNoContent.IsSuccess())
	assert.False(t, KindPermanent.IsSuccess())
}
