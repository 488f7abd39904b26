package dependencies

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/depreg/pkg/httputil"
	"github.com/platinummonkey/depreg/pkg/records"
	"github.com/platinummonkey/depreg/pkg/storage"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	reg, _ := newTestRegistry(t)

	router := mux.NewRouter()
	NewHandlers(reg).RegisterRoutes(router)
	return router
}

func serve(router *mux.Router, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandlers_RegisterAndCheckDependency(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodPut, "/hives/machine/providers/Contoso.Runtime",
		`{"version":"1.5","display_name":"Contoso Runtime","attributes":0}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	t.Run("in range", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/hives/HKLM/providers/contoso.runtime?min=1.0&max=2.0", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp CheckDependencyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.True(t, resp.InRange)
		assert.Equal(t, "1.5", resp.Version)
		assert.Empty(t, resp.Records)
	})

	t.Run("out of range", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/hives/machine/providers/Contoso.Runtime?min=2.0", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp CheckDependencyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.False(t, resp.InRange)
		assert.Equal(t, []records.Record{{Key: "Contoso.Runtime", Name: "Contoso Runtime"}}, resp.Records)
	})

	t.Run("other hive", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/hives/user/providers/Contoso.Runtime", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, KindNotFound, decodeError(t, w).Kind)
	})
}

func TestHandlers_ErrorMapping(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"unknown hive", http.MethodGet, "/hives/galaxy/providers/p", "", http.StatusBadRequest, KindInvalidFormat},
		{"invalid range", http.MethodGet, "/hives/machine/providers/p?min=a.b", "", http.StatusBadRequest, KindInvalidFormat},
		{"invalid attributes", http.MethodGet, "/hives/machine/providers/p?attributes=x", "", http.StatusBadRequest, KindInvalidFormat},
		{"missing provider", http.MethodGet, "/hives/machine/providers/p", "", http.StatusNotFound, KindNotFound},
		{"invalid version", http.MethodPut, "/hives/machine/providers/p", `{"version":"1.x"}`, http.StatusBadRequest, KindInvalidFormat},
		{"unregister unknown", http.MethodDelete, "/hives/machine/providers/p", "", http.StatusNotFound, KindNotFound},
		{"unregister unknown dependent", http.MethodDelete, "/hives/machine/providers/p/dependents/d", "", http.StatusNotFound, KindNotFound},
		{"invalid dependent key", http.MethodPut, "/hives/machine/providers/p/dependents/bad%5Ckey", `{}`, http.StatusBadRequest, KindInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
		})
	}
}

func TestHandlers_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, http.MethodPut, "/hives/machine/providers/p", `{"version":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Dependents(t *testing.T) {
	router := newTestRouter(t)

	require.Equal(t, http.StatusNoContent,
		serve(router, http.MethodPut, "/hives/machine/providers/App.One", `{"version":"1.0","display_name":"App One"}`).Code)
	for _, d := range []string{"App.One", "App.Two", "App.Three"} {
		w := serve(router, http.MethodPut, "/hives/machine/providers/runtime/dependents/"+d, `{"min_version":"1.0"}`)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	}

	t.Run("all", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/hives/machine/providers/runtime/dependents", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp CheckDependentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
		assert.Equal(t, []records.Record{
			{Key: "App.One", Name: "App One"},
			{Key: "App.Three"},
			{Key: "App.Two"},
		}, resp.Dependents)
	})

	t.Run("ignored", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/hives/machine/providers/runtime/dependents?ignore=app.one,APP.TWO&ignore=app.three", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp CheckDependentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Zero(t, resp.Count)
		assert.Empty(t, resp.Dependents)
	})

	t.Run("unregister", func(t *testing.T) {
		w := serve(router, http.MethodDelete, "/hives/machine/providers/runtime/dependents/app.two", "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = serve(router, http.MethodGet, "/hives/machine/providers/runtime/dependents", "")
		var resp CheckDependentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})
}

func TestHandlers_UnregisterDependency(t *testing.T) {
	router := newTestRouter(t)

	require.Equal(t, http.StatusNoContent,
		serve(router, http.MethodPut, "/hives/user/providers/p", `{"version":"1.0"}`).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/hives/user/providers/p", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/hives/user/providers/p", "").Code)
}

func TestHandlers_StoreAccessFailure(t *testing.T) {
	reg := NewRegistry(failingStore{err: storage.AccessError("read", errors.New("connection refused"))})
	router := mux.NewRouter()
	NewHandlers(reg).RegisterRoutes(router)

	w := serve(router, http.MethodGet, "/hives/machine/providers/p", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, KindStoreAccess, decodeError(t, w).Kind)

	w = serve(router, http.MethodGet, "/hives/machine/providers/p/dependents", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlers_InternalError(t *testing.T) {
	reg := NewRegistry(failingStore{err: errors.New("unexpected")})
	router := mux.NewRouter()
	NewHandlers(reg).RegisterRoutes(router)

	w := serve(router, http.MethodDelete, "/hives/machine/providers/p", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, KindInternal, decodeError(t, w).Kind)
}
