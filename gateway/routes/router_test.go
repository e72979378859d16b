package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/FranchuFranchu/kelili/dht"
	"github.com/FranchuFranchu/kelili/gateway/middleware"
)

func newTestServer(t *testing.T, auth *middleware.Authenticator) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	peer := dht.NewPeer(dht.DefaultConfig(), dht.NewSeededSource(3), dht.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = peer.Run(ctx)
	}()

	handler := New(Config{
		Overlay:       peer.Client(),
		MaxBlobBytes:  1024,
		Authenticator: auth,
		RateLimiter:   middleware.NewRateLimiter(map[string]middleware.RateLimit{RateLimitWrite: {RequestsPerMinute: 600, Burst: 100}}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{}, logger),
		Logger:        logger,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
		_ = peer.Close()
	})
	return server
}

func do(t *testing.T, method, url string, body []byte, header http.Header) (*http.Response, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	payload, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, payload
}

func TestBlobRoundTrip(t *testing.T) {
	server := newTestServer(t, nil)

	res, body := do(t, http.MethodPut, server.URL+"/v1/blobs", []byte("hello overlay"), nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, res.Header.Get(middleware.RequestIDHeader))
	var stored storedResponse
	require.NoError(t, json.Unmarshal(body, &stored))
	require.Equal(t, dht.Blake2s([]byte("hello overlay")).String(), stored.Hash)

	res, body = do(t, http.MethodGet, server.URL+"/v1/blobs/"+stored.Hash, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "hello overlay", string(body))

	res, _ = do(t, http.MethodGet, server.URL+"/v1/blobs/"+dht.Blake2s([]byte("absent")).String(), nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = do(t, http.MethodGet, server.URL+"/v1/blobs/nothex", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestBlobLimits(t *testing.T) {
	server := newTestServer(t, nil)

	res, _ := do(t, http.MethodPut, server.URL+"/v1/blobs", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodPut, server.URL+"/v1/blobs", bytes.Repeat([]byte{1}, 1025), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
}

func TestBlockRoundTrip(t *testing.T) {
	server := newTestServer(t, nil)

	payload := `{"index":1,"manaLimit":500,"memoLimit":16,"code":"cHJpbnQoMSk=","name":"demo"}`
	res, body := do(t, http.MethodPut, server.URL+"/v1/blocks", []byte(payload), nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var stored storedResponse
	require.NoError(t, json.Unmarshal(body, &stored))

	res, body = do(t, http.MethodGet, server.URL+"/v1/blocks/"+stored.Hash, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got blockPayload
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "demo", got.Name)
	require.Equal(t, []byte("print(1)"), got.Code)
	require.Equal(t, uint64(500), got.ManaLimit)

	res, _ = do(t, http.MethodPut, server.URL+"/v1/blocks", []byte("{"), nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	// A raw blob is not a block.
	res, body = do(t, http.MethodPut, server.URL+"/v1/blobs", []byte("plain"), nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &stored))
	res, _ = do(t, http.MethodGet, server.URL+"/v1/blocks/"+stored.Hash, nil, nil)
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestWritesRequireToken(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: "s3cret"}, nil)
	server := newTestServer(t, auth)

	res, _ := do(t, http.MethodPut, server.URL+"/v1/blobs", []byte("data"), nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "writer",
		"scope": middleware.ScopeWrite,
		"exp":   time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	res, _ = do(t, http.MethodPut, server.URL+"/v1/blobs", []byte("data"), http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	// Reads stay open.
	res, _ = do(t, http.MethodGet, server.URL+"/v1/blobs/"+dht.Blake2s([]byte("data")).String(), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestHealthStatusAndMetrics(t *testing.T) {
	server := newTestServer(t, nil)

	res, body := do(t, http.MethodGet, server.URL+"/healthz", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "ok", string(body))

	res, body = do(t, http.MethodGet, server.URL+"/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var status statusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	_, err := dht.ParseID(status.Node)
	require.NoError(t, err)

	res, body = do(t, http.MethodGet, server.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, strings.Contains(string(body), "kelili_gateway_requests_total"))
}
