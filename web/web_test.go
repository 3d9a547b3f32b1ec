package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler_ServesIndexAndAssets(t *testing.T) {
	h, err := Handler(nil)
	require.NoError(t, err)

	resp, body := get(t, h, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<title>Storefront</title>")

	resp, body = get(t, h, "/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Contains(t, body, "font-family")
}

func TestHandler_DeepLinkFallsBackToIndex(t *testing.T) {
	h, err := Handler(nil)
	require.NoError(t, err)

	_, body := get(t, h, "/checkout/confirm")
	assert.Contains(t, body, "<title>Storefront</title>")
}

func TestHandler_InjectsEscapedMeta(t *testing.T) {
	h, err := Handler(func(r *http.Request) map[string]string {
		return map[string]string{
			"storefront-environment": "development",
			"storefront-api-base":    `/api/v1"><script>`,
		}
	})
	require.NoError(t, err)

	_, body := get(t, h, "/")
	assert.Contains(t, body, `<meta name="storefront-api-base" content="/api/v1&#34;&gt;&lt;script&gt;">`)
	assert.Contains(t, body, `<meta name="storefront-environment" content="development">`)
	assert.NotContains(t, body, "<script>")
}
