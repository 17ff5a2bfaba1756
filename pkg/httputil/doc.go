// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
//
// Errors are written as
//
//	{"error": "<code>", "message": "<human readable message>"}
//
// where code is the apperrors kind ("forbidden", "not_found", ...). The
// status code is derived from the kind by StatusFor, so handlers return
// domain errors and call WriteAppError without choosing a status.
package httputil
