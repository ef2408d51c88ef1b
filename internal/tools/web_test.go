package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearchTool_Contract(t *testing.T) {
	RunToolContractTests(t, &WebSearchTool{})
}

func TestWebFetchTool_Contract(t *testing.T) {
	RunToolContractTests(t, &WebFetchTool{})
}

func TestCheckURL_Valid(t *testing.T) {
	assert.Empty(t, checkURL("https://example.com"))
	assert.Empty(t, checkURL("http://example.com/page"))
}

func TestCheckURL_InvalidScheme(t *testing.T) {
	assert.Contains(t, checkURL("ftp://example.com"), "only http/https")
}

func TestCheckURL_NoHost(t *testing.T) {
	assert.Contains(t, checkURL("https://"), "missing domain")
}

func TestStripTags(t *testing.T) {
	input := `<html><head><script>alert(1)</script><style>body{}</style></head><body><h1>Hello</h1><p>World</p></body></html>`
	result := stripTags(input)
	assert.NotContains(t, result, "<")
	assert.Contains(t, result, "Hello")
	assert.Contains(t, result, "World")
	assert.NotContains(t, result, "alert")
	assert.NotContains(t, result, "body{}")
}

func TestNormalizeWhitespace(t *testing.T) {
	input := "  hello   world\n\n\n\n\nfoo  "
	assert.Equal(t, "hello world\n\nfoo", normalizeWhitespace(input))
}

func TestWebFetchTool_InvalidURL(t *testing.T) {
	tool := &WebFetchTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"url": "ftp://bad"})
	require.NoError(t, err)
	assert.Contains(t, result, "URL validation failed")
}

func TestWebFetchTool_FetchesAndExtracts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><h1>Title</h1><p>Body text</p></body></html>`))
	}))
	defer srv.Close()

	tool := &WebFetchTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	var parsed struct {
		Status int    `json:"status"`
		Text   string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, 200, parsed.Status)
	assert.Contains(t, parsed.Text, "Title")
	assert.Contains(t, parsed.Text, "Body text")
}

func TestWebSearchTool_NoAPIKey(t *testing.T) {
	tool := &WebSearchTool{}
	t.Setenv("BRAVE_API_KEY", "")
	result, err := tool.Execute(context.Background(), map[string]any{"query": "test"})
	require.NoError(t, err)
	assert.Contains(t, result, "not configured")
}
