package fakesg_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttradeapp/cbtools.go/internal/fakesg"
)

func put(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRevisionBookkeeping(t *testing.T) {
	srv := fakesg.New()
	defer srv.Close()

	url := srv.URL() + "/bucket/doc_1"

	resp := put(t, url, map[string]any{"a": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved struct {
		Rev string `json:"rev"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	require.NotEmpty(t, saved.Rev)

	// A write without the current revision is rejected.
	resp = put(t, url, map[string]any{"a": 2})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A write carrying it goes through with a fresh revision.
	resp = put(t, url, map[string]any{"a": 2, "_rev": saved.Rev})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var next struct {
		Rev string `json:"rev"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	assert.NotEqual(t, saved.Rev, next.Rev)

	assert.Equal(t, 3, srv.Calls("save"))
}
