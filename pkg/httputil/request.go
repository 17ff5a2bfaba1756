package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
)

// ParseJSON decodes JSON from the request body into the destination.
// Numbers are kept as json.Number so that integers and decimals survive
// without float rounding. An empty body is a validation error.
func ParseJSON(r *http.Request, dest interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.Validationf("Request body exceeds %d bytes", maxErr.Limit)
		}
		return apperrors.Validation("Unable to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return apperrors.Validation("Request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return apperrors.Validation(fmt.Sprintf("Invalid JSON: %v", err))
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, r, err)
		return false
	}
	return true
}

// PathVar returns a path parameter, or "" when absent
func PathVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// ParseQueryInt parses an optional non-negative integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil || val < 0 {
		return 0, apperrors.Validationf("Query parameter '%s' must be a non-negative integer", key)
	}
	return val, nil
}

// ParseQueryString returns a query parameter or defaultVal
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if val := r.URL.Query().Get(key); val != "" {
		return val
	}
	return defaultVal
}
