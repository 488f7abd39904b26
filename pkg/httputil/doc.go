// Package httputil provides HTTP helpers for JSON responses, request parsing
// and the middleware chain of the registry server.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, result)
//	httputil.WriteErrorKind(w, http.StatusNotFound, "not_found", err.Error())
//	httputil.WriteNoContent(w)
//
// # Request Parsing
//
//	key, err := httputil.ParsePathString(r, "key")
//	attrs, err := httputil.ParseQueryInt(r, "attributes", 0)
//	ignore := httputil.ParseQueryList(r, "ignore")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Related Packages
//
//   - pkg/observability: Request scoped loggers and metrics
//   - pkg/dependencies: The handlers served behind this chain
package httputil
