package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const userAgent = "signage-device/1"

// HTTPConfig describes the HTTP source.
type HTTPConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// HTTPSource fetches the configuration document over HTTP.
type HTTPSource struct {
	baseURL *url.URL
	http    *http.Client
}

// NewHTTPSource validates cfg and returns a source.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("remote: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPSource{baseURL: parsed, http: client}, nil
}

// Fetch retrieves the configuration for deviceID.
func (s *HTTPSource) Fetch(ctx context.Context, deviceID string) (Config, error) {
	if s == nil {
		return Config{}, errors.New("remote: source is nil")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Config{}, errors.New("remote: device id is required")
	}
	endpoint := s.baseURL.JoinPath("api", "device", deviceID, "config")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Config{}, fmt.Errorf("remote: build config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return Config{}, networkError("config request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Config{}, fmt.Errorf("%w: config request failed (%s): %s", ErrNetwork, resp.Status, strings.TrimSpace(string(body)))
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Config{}, networkError("decode config response", err)
	}
	cfg.normalize()
	return cfg, nil
}
