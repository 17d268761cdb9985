package admin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/maxpert/xidledger/cfg"
	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/notify"
	"github.com/maxpert/xidledger/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager *txn.Manager
	hub     *notify.Hub
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hub := notify.NewHub()
	m, err := txn.Create(filepath.Join(t.TempDir(), "ledger"), txn.Options{Notifier: hub})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(m, hub))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		m.Close()
	})
	return &fixture{manager: m, hub: hub, server: srv}
}

func withSecret(t *testing.T, secret string) {
	t.Helper()
	prev := cfg.Config.Admin.Secret
	cfg.Config.Admin.Secret = secret
	t.Cleanup(func() { cfg.Config.Admin.Secret = prev })
}

func getJSON(t *testing.T, url string, header http.Header) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestLedgerSummary(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.manager.Begin()
		require.NoError(t, err)
	}

	code, body := getJSON(t, f.server.URL+"/admin/ledger", nil)
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["counter"])
	assert.Equal(t, float64(11), data["size"])
	assert.Equal(t, float64(11), data["expected_size"])
	assert.Equal(t, true, data["healthy"])
	assert.Equal(t, f.manager.Path(), data["path"])
}

func TestXIDStatus(t *testing.T) {
	f := newFixture(t)
	xid, err := f.manager.Begin()
	require.NoError(t, err)
	require.NoError(t, f.manager.Abort(xid))

	tests := []struct {
		name   string
		path   string
		code   int
		status string
	}{
		{"aborted", "/admin/xids/1", http.StatusOK, "aborted"},
		{"super xid", "/admin/xids/0", http.StatusOK, "committed"},
		{"unknown", "/admin/xids/2", http.StatusNotFound, ""},
		{"not a number", "/admin/xids/abc", http.StatusBadRequest, ""},
		{"negative", "/admin/xids/-1", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := getJSON(t, f.server.URL+tt.path, nil)
			assert.Equal(t, tt.code, code)
			if tt.status == "" {
				assert.NotEmpty(t, body["error"])
				return
			}
			data := body["data"].(map[string]interface{})
			assert.Equal(t, tt.status, data["status"])
		})
	}
}

func TestVerifyEndpoint(t *testing.T) {
	f := newFixture(t)
	x1, err := f.manager.Begin()
	require.NoError(t, err)
	_, err = f.manager.Begin()
	require.NoError(t, err)
	require.NoError(t, f.manager.Commit(x1))

	code, body := getJSON(t, f.server.URL+"/admin/ledger/verify", nil)
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["ok"])
	report := data["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["committed"])
	assert.Equal(t, float64(1), report["active"])
	assert.Equal(t, float64(0), report["invalid"])

	digest, err := f.manager.Digest()
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(digest, 16), data["digest"])
}

func TestSnapshotEndpoint(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		xid, err := f.manager.Begin()
		require.NoError(t, err)
		require.NoError(t, f.manager.Commit(xid))
	}

	resp, err := http.Get(f.server.URL + "/admin/ledger/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	base := filepath.Join(t.TempDir(), "restored")
	manifest, err := ledger.RestoreSnapshot(bytes.NewReader(raw), base)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), manifest.Counter)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)
	withSecret(t, "s3cret")

	tests := []struct {
		name   string
		header http.Header
		code   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong secret", http.Header{SecretHeader: {"nope"}}, http.StatusUnauthorized},
		{"secret header", http.Header{SecretHeader: {"s3cret"}}, http.StatusOK},
		{"bearer", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
		{"basic scheme", http.Header{"Authorization": {"Basic s3cret"}}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := getJSON(t, f.server.URL+"/admin/ledger", tt.header)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestTransitionStream(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/admin/transitions?status=committed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	xid, err := f.manager.Begin()
	require.NoError(t, err)
	require.NoError(t, f.manager.Commit(xid))

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, float64(xid), event["xid"])
	assert.Equal(t, "committed", event["status"])
}

func TestTransitionStream_BadFilter(t *testing.T) {
	f := newFixture(t)

	code, body := getJSON(t, f.server.URL+"/admin/transitions?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "pending")
}
