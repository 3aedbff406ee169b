package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// servicePort is where the identity service listens; override with
// IDENTITY_PORT when the compose setup maps it elsewhere.
func servicePort() int {
	if v := os.Getenv("IDENTITY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return 8080
}

func baseURL() string {
	return fmt.Sprintf("http://localhost:%d", servicePort())
}

// uniqueEmail generates a unique email address to avoid test collisions.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d-%d@test.example.com", prefix, time.Now().UnixNano(), rand.Intn(100000))
}

// uniqueUUID generates a random UUID v4 for bogus-id lookups.
func uniqueUUID() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = byte(rand.Intn(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// skipIfNotRunning performs a quick health check against the service.
// If it is unreachable, the test is skipped (not failed).
func skipIfNotRunning(t *testing.T) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL() + "/health/live")
	if err != nil {
		t.Skipf("identity service on port %d not reachable (Docker not running?): %v", servicePort(), err)
	}
	resp.Body.Close()
}

// adminCredentials returns the seeded admin login, skipping the test when
// the environment does not provide one.
func adminCredentials(t *testing.T) (email, password string) {
	t.Helper()
	email = os.Getenv("ADMIN_EMAIL")
	password = os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		t.Skip("ADMIN_EMAIL / ADMIN_PASSWORD not set; skipping admin flow")
	}
	return email, password
}

// loginAs logs in and returns the access token.
func loginAs(t *testing.T, email, password string) string {
	t.Helper()
	status, data := httpPost(t, baseURL()+"/api/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	})
	requireStatus(t, status, 200)
	return extractString(t, data, "data.tokens.access_token")
}

// registerUser registers a fresh user and returns its email plus the token
// pair from the response.
func registerUser(t *testing.T, prefix string) (email string, data map[string]any) {
	t.Helper()
	email = uniqueEmail(prefix)
	status, data := httpPost(t, baseURL()+"/api/v1/auth/register", map[string]any{
		"email":    email,
		"password": "TestPass123!",
		"name":     "Integration Test",
	})
	requireStatus(t, status, 201)
	return email, data
}

// httpGet performs an HTTP GET request and returns the status code and decoded JSON body.
func httpGet(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodGet, url, nil, "", nil)
}

// httpGetWithAuth performs an HTTP GET request with a Bearer token.
func httpGetWithAuth(t *testing.T, url, token string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodGet, url, nil, token, nil)
}

// httpPost performs an HTTP POST request with a JSON body.
func httpPost(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodPost, url, body, "", nil)
}

// httpPostWithAuth performs an HTTP POST request with a JSON body and Bearer token.
func httpPostWithAuth(t *testing.T, url string, body any, token string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodPost, url, body, token, nil)
}

// httpPutWithAuth performs an HTTP PUT request with a JSON body and Bearer token.
func httpPutWithAuth(t *testing.T, url string, body any, token string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodPut, url, body, token, nil)
}

// httpDeleteWithAuth performs an HTTP DELETE request with a Bearer token.
func httpDeleteWithAuth(t *testing.T, url, token string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodDelete, url, nil, token, nil)
}

// httpGetWithHeaders performs an HTTP GET request with custom headers.
func httpGetWithHeaders(t *testing.T, url string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	return doJSONRequest(t, http.MethodGet, url, nil, "", headers)
}

// uploadFile posts a multipart form with a single "file" part.
func uploadFile(t *testing.T, url, token, fileName string, content []byte) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("creating form file failed: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("writing form file failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("creating upload request failed: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

// downloadRaw performs an authenticated GET and returns the raw body plus headers.
func downloadRaw(t *testing.T, url, token string, headers map[string]string) (int, http.Header, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("creating GET request for %s failed: %v", url, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body failed: %v", err)
	}
	return resp.StatusCode, resp.Header, raw
}

// doJSONRequest is the internal helper for JSON HTTP requests.
func doJSONRequest(t *testing.T, method, url string, body any, token string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body failed: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		t.Fatalf("creating %s request for %s failed: %v", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp.Body)
}

// decodeBody reads the response body and attempts to decode it as JSON.
// If the body is empty or not JSON, it returns an empty map.
func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading response body failed: %v", err)
	}
	if len(raw) == 0 {
		return map[string]any{}
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		// Not JSON; return the raw string in a "raw" key for debugging.
		return map[string]any{"raw": string(raw)}
	}
	return result
}

// requireStatus asserts that the HTTP status code matches the expected value.
func requireStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d", want, got)
	}
}

// extractField extracts a value from a nested map using a dot-separated path.
// For example, extractField(data, "data.user.id") navigates data["data"]["user"]["id"].
func extractField(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// extractString is a convenience wrapper around extractField that returns a string.
func extractString(t *testing.T, data map[string]any, path string) string {
	t.Helper()
	val := extractField(data, path)
	if val == nil {
		t.Fatalf("expected string at path %q, got nil", path)
	}
	s, ok := val.(string)
	if !ok {
		t.Fatalf("expected string at path %q, got %T: %v", path, val, val)
	}
	return s
}
