package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/proxtrace/exposure-sync/internal/app"
	"github.com/proxtrace/exposure-sync/internal/config"
)

// ServerTestHelper manages the application lifecycle for one test
type ServerTestHelper struct {
	ctx        context.Context
	cfg        *config.Config
	baseURL    string
	address    string
	httpClient *http.Client
	app        *app.ExposureSyncApp
}

// NewTestConfig returns a configuration with in-memory storage that syncs against backendURL
func NewTestConfig(backendURL string) *config.Config {
	cfg := config.Default()
	cfg.Backend.BucketBaseURL = backendURL
	cfg.Storage.Type = config.StorageTypeMemory
	cfg.Calendar.Timezone = "UTC"
	return cfg
}

// NewServerTestHelper creates a helper serving cfg on a free local port
func NewServerTestHelper(ctx context.Context, cfg *config.Config) (*ServerTestHelper, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)
	return &ServerTestHelper{
		ctx:     ctx,
		cfg:     cfg,
		address: address,
		baseURL: "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// StartServer builds the application and serves it in the background
func (s *ServerTestHelper) StartServer() error {
	exposureApp, err := app.NewExposureSyncApp(s.ctx,
		app.WithConfig(s.cfg),
		app.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = exposureApp

	go func() {
		if err := exposureApp.Start(); err != nil {
			// the test fails when it cannot connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the application
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until the health endpoint answers
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health returned %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "server should become ready")
}

// Get performs a GET against the application
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.do(http.MethodGet, path, nil, nil)
}

// Post performs a POST with an optional JSON body
func (s *ServerTestHelper) Post(path string, body any, headers map[string]string) (*http.Response, error) {
	return s.do(http.MethodPost, path, body, headers)
}

// Delete performs a DELETE against the application
func (s *ServerTestHelper) Delete(path string) (*http.Response, error) {
	return s.do(http.MethodDelete, path, nil, nil)
}

func (s *ServerTestHelper) do(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.httpClient.Do(req)
}

// DecodeJSON reads resp into v and closes the body
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
