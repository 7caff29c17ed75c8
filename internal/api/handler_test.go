package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/pipeline"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
)

type fakeDriver struct {
	nextID int
	status sandbox.Status
}

func (f *fakeDriver) Acquire(ctx context.Context, limits sandbox.Limits) (*sandbox.Handle, error) {
	dir, err := os.MkdirTemp("", "api-test-box-*")
	if err != nil {
		return nil, err
	}
	f.nextID++
	return &sandbox.Handle{ID: f.nextID, WorkDir: dir, Limits: limits}, nil
}

func (f *fakeDriver) Run(ctx context.Context, h *sandbox.Handle, argv []string, env []string, stdin []byte, extraDirs []string) (int, sandbox.RunMeta, error) {
	return 0, sandbox.RunMeta{Status: f.status, Stdout: []byte("ok")}, nil
}

func (f *fakeDriver) Release(ctx context.Context, h *sandbox.Handle) error {
	return os.RemoveAll(h.WorkDir)
}

func newTestHandler() *Handler {
	registry := lang.NewRegistry([]*lang.Descriptor{
		{Name: "shecho", SourceExt: ".sh", Interpreter: &lang.Program{Path: "sh"}},
	})
	fd := &fakeDriver{status: sandbox.StatusOK}
	p := pipeline.New(fd)
	return NewHandler(registry, p, nil, "")
}

func TestLanguagesEndpointListsRegisteredLanguages(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/languages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.languages(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shecho")
}

func TestRunEndpointUnknownLanguageReturnsSuccessFalse(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	body := `{"lang":"cobol","source":"SGVsbG8="}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, TypeJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.run(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "incorrect language cobol")
}

func TestRunEndpointCleanRunReturnsTestResults(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	body := `{"lang":"shecho","source":"ZWNobyBoaQ==","tests":[{}]}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, TypeJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.run(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestRunEndpointRespondsMsgpackWhenAccepted(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	body := `{"lang":"shecho","source":"ZWNobyBoaQ==","tests":[{}]}`
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, TypeJSON)
	req.Header.Set(echo.HeaderAccept, TypeMsgpack)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.run(c))
	assert.Equal(t, TypeMsgpack, rec.Header().Get(echo.HeaderContentType))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, true, decoded["success"])
}

func TestAcceptedTypesFallsBackToJSONForUnrecognizedHeader(t *testing.T) {
	assert.Equal(t, []string{TypeJSON}, acceptedTypes("text/plain"))
}

func TestAcceptedTypesDefaultsToJSONFirstForWildcard(t *testing.T) {
	got := acceptedTypes("")
	require.NotEmpty(t, got)
	assert.Equal(t, TypeJSON, got[0])
}
