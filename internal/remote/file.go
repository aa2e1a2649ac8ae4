package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSource reads the configuration document from a local file. Files ending
// in .json are decoded as JSON, everything else as YAML.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch re-reads the file on every call so edits are picked up by the next sync.
func (s *FileSource) Fetch(ctx context.Context, _ string) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Config{}, networkError("read config file", err)
	}
	var cfg Config
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("remote: parse %s: %w", s.path, err)
	}
	cfg.normalize()
	return cfg, nil
}
