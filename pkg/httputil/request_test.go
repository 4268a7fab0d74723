package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"payments","owner":"team-a"}`},
		{name: "malformed", body: `{"name":`, wantErr: true},
		{name: "unknown field", body: `{"name":"payments","colour":"red"}`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/apis", strings.NewReader(tt.body))
			var req createRequest
			err := ParseJSON(r, &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "payments", req.Name)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/apis", strings.NewReader("nope"))

	var req createRequest
	ok := ParseJSONOrError(w, r, &req)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid JSON")
}

func TestParsePathString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/apis/abc", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "abc"})

	id, err := ParsePathString(r, "id")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = ParsePathString(r, "version")
	assert.EqualError(t, err, "missing path parameter: version")

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, r, "version")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/search?limit=25&offset=-1&page=two", nil)

	limit, err := ParseQueryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	missing, err := ParseQueryInt(r, "size", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, missing)

	_, err = ParseQueryInt(r, "offset", 0)
	assert.Error(t, err)

	w := httptest.NewRecorder()
	_, ok := ParseQueryIntOrError(w, r, "page", 1)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/browse?subtree=taxonomy://a", nil)

	assert.Equal(t, "taxonomy://a", ParseQueryString(r, "subtree", ""))
	assert.Equal(t, "default", ParseQueryString(r, "missing", "default"))
}
