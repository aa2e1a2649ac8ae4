package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"signage/internal/config"
)

// ErrNetwork marks transport or HTTP failures. Callers must leave local state
// untouched when they see it.
var ErrNetwork = errors.New("remote: network failure")

// Source produces the configuration document for a device.
type Source interface {
	Fetch(ctx context.Context, deviceID string) (Config, error)
}

// New builds the source selected by configuration: a FileSource when
// server.config_file is set, otherwise an HTTPSource.
func New(cfg *config.Config) (Source, error) {
	if cfg == nil {
		return nil, errors.New("remote: config is nil")
	}
	if path := strings.TrimSpace(cfg.Server.ConfigFile); path != "" {
		return NewFileSource(path), nil
	}
	return NewHTTPSource(HTTPConfig{
		BaseURL:    cfg.Server.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout()},
	})
}

func networkError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
}

const defaultHTTPTimeout = 20 * time.Second
