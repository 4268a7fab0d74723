// Package httputil holds the JSON request/response helpers and middleware
// shared by the catalog HTTP handlers.
//
// Errors from storage and services carry catalog sentinels; WriteError maps
// them to status codes:
//
//	catalog.ErrNotFound        -> 404
//	catalog.ErrConflict        -> 409
//	catalog.ErrInvalidArgument -> 400
//	anything else              -> 500 (logged, message hidden)
//
// Middleware order used by the server:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)
package httputil
