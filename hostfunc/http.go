package hostfunc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Register adds http_request and http_get to r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
	r.Register("http_get", h.Get)
}

// Get is http_request("GET", url).
func (h *HTTP) Get(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	return h.Request(ctx, []any{"GET", args[0]})
}

// Request performs an HTTP request: (method, url, body=None, headers=None).
// The result maps status, body and headers.
func (h *HTTP) Request(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 2, 4); err != nil {
		return nil, err
	}
	method, err := stringArg(args, 0, "method")
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(method)

	switch method {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	rawURL, err := stringArg(args, 1, "url")
	if err != nil || rawURL == "" {
		return nil, fmt.Errorf("url required")
	}

	if len(rawURL) > h.cfg.MaxURLLength {
		return nil, fmt.Errorf("url exceeds max length")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https")
	}

	if len(h.cfg.AllowedHosts) == 0 {
		return nil, fmt.Errorf("http not enabled")
	}

	host := parsed.Hostname()
	if !h.isHostAllowed(host) {
		return nil, fmt.Errorf("host not allowed: %s", host)
	}

	var body io.Reader
	if len(args) > 2 && args[2] != nil {
		bodyStr, ok := args[2].(string)
		if !ok {
			return nil, fmt.Errorf("body must be a string")
		}
		if int64(len(bodyStr)) > h.cfg.MaxBodySize {
			return nil, fmt.Errorf("request body exceeds max size")
		}
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(args) > 3 {
		if headers, ok := args[3].(map[string]any); ok {
			for k, v := range headers {
				if vs, ok := v.(string); ok {
					req.Header.Set(k, vs)
				}
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	respHeaders := make(map[string]any)
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]any{
		"status":  int64(resp.StatusCode),
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}

// isHostAllowed matches IP literals by address and names by exact host or
// subdomain.
func (h *HTTP) isHostAllowed(host string) bool {
	ip, ipErr := netip.ParseAddr(host)
	for _, allowed := range h.cfg.AllowedHosts {
		if ipErr == nil {
			if a, err := netip.ParseAddr(allowed); err == nil && a == ip {
				return true
			}
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
