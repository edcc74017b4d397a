package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/codexec/codexec/internal/registry"
	"github.com/codexec/codexec/internal/session"
	"github.com/codexec/codexec/internal/store"
	"github.com/codexec/codexec/internal/tasks"
	"github.com/codexec/codexec/internal/testutil"
)

func TestExecute(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Execute", mock.Anything, testSessionID, "print(1)", "", "").Return(&tasks.Result{
		Success:       true,
		Stdout:        "1\n",
		ExitCode:      0,
		ExecutionTime: 0.042,
	}, nil)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"code": "print(1)"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp executeResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, testSessionID, resp.SessionID)
	assert.Equal(t, "1\n", resp.Stdout)
	assert.Equal(t, 0, resp.ExitCode)
	assert.Equal(t, "completed", resp.Status)
}

func TestExecute_NonZeroExitIsErrorStatus(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Execute", mock.Anything, testSessionID, mock.Anything, "", "").Return(&tasks.Result{
		Success:  true,
		Stderr:   "Traceback\n",
		ExitCode: 1,
	}, nil)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"code": "boom"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp executeResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.ExitCode)
}

func TestExecute_StatusGate(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Execute", mock.Anything, testSessionID, mock.Anything, "", "").
		Return(nil, &session.NotReadyError{Status: store.StatusPending})

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"code": "print(1)"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr APIError
	testutil.DecodeJSON(t, rec, &apiErr)
	assert.Equal(t, ErrCodeSessionNotReady, apiErr.Code)
	assert.Equal(t, "Session container is still starting. Please wait and retry.", apiErr.Message)
}

func TestExecute_MissingCode(t *testing.T) {
	s, svc := newTestServer(t)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"stdin": "x"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Execute",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_WorkerFailure(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Execute", mock.Anything, testSessionID, mock.Anything, "", "").Return(&tasks.Result{
		Success: false,
		Error:   "Container not found. Session may have expired.",
	}, nil)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"code": "print(1)"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr APIError
	testutil.DecodeJSON(t, rec, &apiErr)
	assert.Equal(t, ErrCodeInternalError, apiErr.Code)
	assert.Contains(t, apiErr.Message, "Container not found")
}

func TestExecute_AwaitTimeout(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Execute", mock.Anything, testSessionID, mock.Anything, "", "").
		Return(nil, tasks.ErrAwaitTimeout)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/sessions/"+testSessionID+"/execute",
		map[string]string{"code": "while True: pass"})
	rec := serve(s, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var apiErr APIError
	testutil.DecodeJSON(t, rec, &apiErr)
	assert.Equal(t, ErrCodeTaskTimeout, apiErr.Code)
}

func TestEphemeralExecute(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("EphemeralExecute", mock.Anything, "node", "console.log(1)", "", "in\n").Return(&tasks.Result{
		Success:       true,
		Stdout:        "1\n",
		ExitCode:      0,
		ExecutionTime: 0.1,
	}, nil)

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/execute", map[string]string{
		"environment": "node",
		"code":        "console.log(1)",
		"stdin":       "in\n",
	})
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp executeResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "node", resp.Environment)
	assert.Empty(t, resp.SessionID)
	assert.Equal(t, "completed", resp.Status)
}

func TestEphemeralExecute_InvalidEnvironment(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("EphemeralExecute", mock.Anything, "cobol", mock.Anything, "", "").
		Return(nil, &session.InvalidEnvironmentError{Environment: "cobol", Available: []string{"python"}})

	req := testutil.JSONRequest(t, http.MethodPost, "/api/v1/execute", map[string]string{
		"environment": "cobol",
		"code":        "x",
	})
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr APIError
	testutil.DecodeJSON(t, rec, &apiErr)
	assert.Equal(t, ErrCodeInvalidEnvironment, apiErr.Code)
}

func TestEnvironments(t *testing.T) {
	s, svc := newTestServer(t)

	svc.On("Environments").Return([]registry.Environment{
		{Name: "node", Description: "Node.js 20", FileExtension: ".js"},
		{Name: "python", Description: "Python 3.11", FileExtension: ".py"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/environments", nil)
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []environmentResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Len(t, resp, 2)
	assert.Equal(t, "node", resp[0].Name)
	assert.Equal(t, ".py", resp[1].FileExtension)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "code-executor", resp["service"])
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := serve(s, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "code-executor", resp["service"])
}
