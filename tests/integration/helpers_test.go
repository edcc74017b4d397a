//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClient drives a deployed stack (API + worker + Redis + Docker)
// through the HTTP surface. The suite is skipped unless CODE_EXECUTOR_URL
// points at one.
type testClient struct {
	baseURL string
	client  *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	baseURL := os.Getenv("CODE_EXECUTOR_URL")
	if baseURL == "" {
		t.Skip("CODE_EXECUTOR_URL not set; skipping integration suite")
	}
	return &testClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *testClient) doRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (c *testClient) createSession(t *testing.T, environment string) string {
	t.Helper()
	resp := c.doRequest(t, "POST", "/api/v1/sessions", map[string]any{
		"environment": environment,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "failed to create session")
	body := decodeResponse(t, resp)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (c *testClient) getSession(t *testing.T, id string) (int, map[string]any) {
	t.Helper()
	resp := c.doRequest(t, "GET", "/api/v1/sessions/"+id, nil)
	return resp.StatusCode, decodeResponse(t, resp)
}

// awaitReady polls the session until its container is up.
func (c *testClient) awaitReady(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		code, body := c.getSession(t, id)
		require.Equal(t, http.StatusOK, code)
		switch body["status"] {
		case "ready":
			return
		case "error":
			t.Fatalf("session entered error state: %v", body["last_error"])
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("session %s not ready within 30s", id)
}

func (c *testClient) execute(t *testing.T, id, code string) (int, map[string]any) {
	t.Helper()
	resp := c.doRequest(t, "POST", fmt.Sprintf("/api/v1/sessions/%s/execute", id), map[string]any{
		"code": code,
	})
	return resp.StatusCode, decodeResponse(t, resp)
}

func (c *testClient) ephemeral(t *testing.T, environment, code string) (int, map[string]any) {
	t.Helper()
	resp := c.doRequest(t, "POST", "/api/v1/execute", map[string]any{
		"environment": environment,
		"code":        code,
	})
	return resp.StatusCode, decodeResponse(t, resp)
}

func (c *testClient) stopSession(t *testing.T, id string) map[string]any {
	t.Helper()
	resp := c.doRequest(t, "DELETE", "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeResponse(t, resp)
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}
