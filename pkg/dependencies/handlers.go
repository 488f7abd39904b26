package dependencies

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/depreg/pkg/dict"
	"github.com/platinummonkey/depreg/pkg/httputil"
	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/records"
	"github.com/platinummonkey/depreg/pkg/storage"
)

// Error kinds reported in HTTP error bodies
const (
	KindNotFound          = "not_found"
	KindInvalidFormat     = "invalid_format"
	KindStoreAccess       = "store_access"
	KindAllocationFailure = "allocation_failure"
	KindInternal          = "internal"
)

// Handlers exposes a Registry over HTTP
type Handlers struct {
	registry *Registry
}

// NewHandlers creates new registry handlers
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

// RegisterRoutes registers the provider and dependent routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	providers := router.PathPrefix("/hives/{hive}/providers/{key}").Subrouter()
	providers.HandleFunc("", h.checkDependency).Methods(http.MethodGet)
	providers.HandleFunc("", h.registerDependency).Methods(http.MethodPut)
	providers.HandleFunc("", h.unregisterDependency).Methods(http.MethodDelete)
	providers.HandleFunc("/dependents", h.checkDependents).Methods(http.MethodGet)
	providers.HandleFunc("/dependents/{dependent}", h.registerDependent).Methods(http.MethodPut)
	providers.HandleFunc("/dependents/{dependent}", h.unregisterDependent).Methods(http.MethodDelete)
}

// RegisterDependencyRequest is the body of PUT /hives/{hive}/providers/{key}
type RegisterDependencyRequest struct {
	Version     string             `json:"version"`
	DisplayName string             `json:"display_name"`
	Attributes  storage.Attributes `json:"attributes"`
}

// RegisterDependentRequest is the body of PUT .../dependents/{dependent}
type RegisterDependentRequest struct {
	MinVersion string             `json:"min_version"`
	MaxVersion string             `json:"max_version"`
	Attributes storage.Attributes `json:"attributes"`
}

// CheckDependencyResponse is returned by GET /hives/{hive}/providers/{key}.
// Records holds the provider when its version is outside the requested range.
type CheckDependencyResponse struct {
	CheckResult
	Records []records.Record `json:"records"`
}

// CheckDependentsResponse is returned by GET .../dependents
type CheckDependentsResponse struct {
	Count      int              `json:"count"`
	Dependents []records.Record `json:"dependents"`
}

// checkDependency handles GET /hives/{hive}/providers/{key}
func (h *Handlers) checkDependency(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}

	attrs, err := httputil.ParseQueryInt(r, "attributes", 0)
	if err != nil {
		httputil.WriteErrorKind(w, http.StatusBadRequest, KindInvalidFormat, err.Error())
		return
	}

	out := records.NewStore()
	result, err := h.registry.CheckDependency(r.Context(), hive, key,
		httputil.ParseQueryString(r, "min", ""),
		httputil.ParseQueryString(r, "max", ""),
		storage.Attributes(attrs), nil, out)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, CheckDependencyResponse{
		CheckResult: result,
		Records:     out.Records(),
	})
}

// registerDependency handles PUT /hives/{hive}/providers/{key}
func (h *Handlers) registerDependency(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}

	var req RegisterDependencyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.registry.RegisterDependency(r.Context(), hive, key, req.Version, req.DisplayName, req.Attributes); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// unregisterDependency handles DELETE /hives/{hive}/providers/{key}
func (h *Handlers) unregisterDependency(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}

	if err := h.registry.UnregisterDependency(r.Context(), hive, key); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// checkDependents handles GET /hives/{hive}/providers/{key}/dependents
func (h *Handlers) checkDependents(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}

	attrs, err := httputil.ParseQueryInt(r, "attributes", 0)
	if err != nil {
		httputil.WriteErrorKind(w, http.StatusBadRequest, KindInvalidFormat, err.Error())
		return
	}

	ignoreKeys := httputil.ParseQueryList(r, "ignore")
	ignore := dict.NewStringSet(len(ignoreKeys), dict.CaseInsensitive)
	defer ignore.Destroy()
	for _, k := range ignoreKeys {
		ignore.AddKey(k)
	}

	out := records.NewStore()
	count, err := h.registry.CheckDependents(r.Context(), hive, key, storage.Attributes(attrs), ignore, out)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, CheckDependentsResponse{
		Count:      count,
		Dependents: out.Records(),
	})
}

// registerDependent handles PUT /hives/{hive}/providers/{key}/dependents/{dependent}
func (h *Handlers) registerDependent(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}
	dependent := mux.Vars(r)["dependent"]

	var req RegisterDependentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.registry.RegisterDependent(r.Context(), hive, key, dependent, req.MinVersion, req.MaxVersion, req.Attributes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// unregisterDependent handles DELETE /hives/{hive}/providers/{key}/dependents/{dependent}
func (h *Handlers) unregisterDependent(w http.ResponseWriter, r *http.Request) {
	hive, key, ok := h.providerVars(w, r)
	if !ok {
		return
	}
	dependent := mux.Vars(r)["dependent"]

	if err := h.registry.UnregisterDependent(r.Context(), hive, key, dependent); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) providerVars(w http.ResponseWriter, r *http.Request) (storage.Hive, string, bool) {
	vars := mux.Vars(r)

	hive, err := storage.ParseHive(vars["hive"])
	if err != nil {
		httputil.WriteErrorKind(w, http.StatusBadRequest, KindInvalidFormat, err.Error())
		return "", "", false
	}
	return hive, vars["key"], true
}

// writeError maps registry errors onto HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		kind   string
	)
	switch {
	case IsNotFound(err):
		status, kind = http.StatusNotFound, KindNotFound
	case IsInvalidFormat(err):
		status, kind = http.StatusBadRequest, KindInvalidFormat
	case IsStoreAccess(err):
		status, kind = http.StatusServiceUnavailable, KindStoreAccess
	case errors.Is(err, records.ErrOutOfMemory):
		status, kind = http.StatusInternalServerError, KindAllocationFailure
	default:
		status, kind = http.StatusInternalServerError, KindInternal
	}

	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).WithField("kind", kind).Error("Registry request failed")
	}
	httputil.WriteErrorKind(w, status, kind, err.Error())
}
