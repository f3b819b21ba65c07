package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

const userAgent = "prbot/1.0"

// BaseForge holds the HTTP plumbing shared by REST forge clients:
// URL building, auth headers, status classification and JSON decoding.
type BaseForge struct {
	httpClient *http.Client
	apiURL     string
	token      string

	customHeaders map[string]string
}

// NewBaseForge creates a BaseForge for the given API root.
func NewBaseForge(httpClient *http.Client, apiURL, token string) *BaseForge {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BaseForge{
		httpClient:    httpClient,
		apiURL:        apiURL,
		token:         token,
		customHeaders: make(map[string]string),
	}
}

// SetCustomHeader sets a header applied to every request.
func (b *BaseForge) SetCustomHeader(key, value string) {
	b.customHeaders[key] = value
}

// NewRequest creates an HTTP request relative to the API root.
// The endpoint may carry a query string ("repos/o/r/pulls?state=open").
func (b *BaseForge) NewRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(b.apiURL)
	if err != nil {
		return nil, errors.ForgeError("failed to parse API URL").
			WithCause(err).
			WithContext("api_url", b.apiURL).
			Build()
	}

	basePath := strings.TrimSuffix(u.Path, "/")
	u.Path = path.Join(basePath, cleanEndpoint)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	u.RawQuery = rawQuery

	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.ForgeError("failed to marshal request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.ForgeError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", u.String()).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range b.customHeaders {
		req.Header.Set(key, value)
	}

	return req, nil
}

// DoRequest executes req and decodes a JSON response into result.
func (b *BaseForge) DoRequest(req *http.Request, result any) error {
	_, err := b.DoRequestWithHeaders(req, result)
	return err
}

// DoRequestWithHeaders is like DoRequest but also returns the response
// headers, which carry GitHub's Link pagination.
func (b *BaseForge) DoRequestWithHeaders(req *http.Request, result any) (http.Header, error) {
	resp, err := b.send(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return nil, errors.ForgeError("failed to decode response").
				WithCause(err).
				WithContext("url", req.URL.String()).
				Build()
		}
	}

	return resp.Header, nil
}

// DoRaw executes req and returns at most limit bytes of the body.
// A limit <= 0 reads the whole body.
func (b *BaseForge) DoRaw(req *http.Request, limit int64) ([]byte, error) {
	resp, err := b.send(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NetworkError("failed to read response body").
			WithCause(err).
			WithContext("url", req.URL.String()).
			Build()
	}
	return data, nil
}

func (b *BaseForge) send(req *http.Request) (*http.Response, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkError("failed to execute forge request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}

	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()

	limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")

	builder := errors.ForgeError(fmt.Sprintf("forge API error: %s", resp.Status))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		builder = errors.AuthError(fmt.Sprintf("forge API error: %s", resp.Status))
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		builder = builder.RateLimit()
	case resp.StatusCode == http.StatusForbidden:
		builder = errors.AuthError(fmt.Sprintf("forge API error: %s", resp.Status))
	case resp.StatusCode == http.StatusNotFound:
		builder = errors.NotFoundError(fmt.Sprintf("forge API error: %s", resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests:
		builder = builder.RateLimit()
	case resp.StatusCode < 500:
		builder = builder.WithRetry(errors.RetryNever)
	}

	return nil, builder.
		WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.String()).
		WithContext("response", bodyStr).
		Build()
}

// PaginatedFetchHelper walks page-numbered endpoints until fetchPage
// reports no more pages or limit items (when > 0) have been collected.
func PaginatedFetchHelper[T any](
	ctx context.Context,
	baseEndpoint string,
	pageParam string,
	limitParam string,
	pageSize int,
	limit int,
	fetchPage func(endpoint string) ([]T, bool, error),
) ([]T, error) {
	var allResults []T
	page := 1

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sep := "?"
		if strings.Contains(baseEndpoint, "?") {
			sep = "&"
		}
		endpoint := fmt.Sprintf("%s%s%s=%d&%s=%d", baseEndpoint, sep, pageParam, page, limitParam, pageSize)

		pageResults, hasMore, err := fetchPage(endpoint)
		if err != nil {
			return nil, err
		}

		allResults = append(allResults, pageResults...)
		if limit > 0 && len(allResults) >= limit {
			return allResults[:limit], nil
		}

		if !hasMore {
			break
		}
		page++
	}

	return allResults, nil
}

// hasNextPage reports whether a GitHub Link header advertises rel="next".
func hasNextPage(h http.Header) bool {
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			if strings.Contains(part, `rel="next"`) {
				return true
			}
		}
	}
	return false
}
