package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test", "count": 12345678901234567}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "empty body", body: ``, expectError: true},
		{name: "whitespace body", body: "  \n", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest map[string]interface{}

			err := ParseJSON(req, &dest)

			if tt.expectError {
				assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest["name"])
			assert.Equal(t, json.Number("12345678901234567"), dest["count"])
		})
	}
}

func TestParseJSON_BodyTooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`{"name":"aaaaaaaaaaaaaaaa"}`))
	req.Body = http.MaxBytesReader(w, req.Body, 8)

	var dest map[string]interface{}
	err := ParseJSON(req, &dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 8 bytes")
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`[`))

	var dest map[string]interface{}
	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "validation_error", body.Error)
}

func TestPathVar(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tables/employees", nil)
	req = mux.SetURLVars(req, map[string]string{"table": "employees"})

	assert.Equal(t, "employees", PathVar(req, "table"))
	assert.Empty(t, PathVar(req, "id"))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?limit=10&bad=x&neg=-1", nil)

	val, err := ParseQueryInt(req, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 10, val)

	val, err = ParseQueryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, val)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = ParseQueryInt(req, "neg", 0)
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?sort=name", nil)
	assert.Equal(t, "name", ParseQueryString(req, "sort", "id"))
	assert.Equal(t, "asc", ParseQueryString(req, "order", "asc"))
}

func BenchmarkParseJSON(b *testing.B) {
	body := []byte(`{"name":"test","salary":"1000.00","active":true}`)
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(body))
		var dest map[string]interface{}
		_ = ParseJSON(req, &dest)
	}
}
