package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type HTTPClient struct {
	Client  *http.Client
	BaseURL string
}

type Response struct {
	*http.Response
	Body []byte
}

func NewHTTPClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &HTTPClient{
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		BaseURL: baseURL,
	}
}

func (c *HTTPClient) Get(path string, headers ...string) (*Response, error) {
	return c.Request(http.MethodGet, path, nil, headers...)
}

func (c *HTTPClient) Post(path string, body any, headers ...string) (*Response, error) {
	return c.Request(http.MethodPost, path, body, headers...)
}

func (c *HTTPClient) Request(method, path string, body any, headers ...string) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{Response: resp, Body: data}, nil
}

func (r *Response) GetJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (r *Response) AssertStatus(t *testing.T, expectedStatus int) {
	t.Helper()
	require.Equal(t, expectedStatus, r.StatusCode, "unexpected status code. Response: %s", string(r.Body))
}

func (r *Response) AssertRedirect(t *testing.T, expectedLocation string) {
	t.Helper()
	require.True(t, r.StatusCode >= 300 && r.StatusCode < 400, "expected redirect status code, got %d", r.StatusCode)
	require.Equal(t, expectedLocation, r.Header.Get("Location"))
}
