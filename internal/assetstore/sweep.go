package assetstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"signage/internal/logging"
)

// SweepResult contains the outcome of a directory sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a path with its removal error.
type SweepError struct {
	Path  string
	Error error
}

// Sweep removes every regular file in the assets directory whose path is not
// in keep. Stale ".part" files are never in keep and are removed too.
func (s *Store) Sweep(ctx context.Context, keep map[string]struct{}) SweepResult {
	return s.sweep(ctx, func(path string) bool {
		_, ok := keep[filepath.Clean(path)]
		return ok
	}, "orphaned")
}

// Purge removes every file in the assets directory.
func (s *Store) Purge(ctx context.Context) SweepResult {
	return s.sweep(ctx, func(string) bool { return false }, "unpaired")
}

func (s *Store) sweep(ctx context.Context, keep func(string) bool, reason string) SweepResult {
	result := SweepResult{}
	if s.dir == "" {
		return result
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: s.dir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if keep(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
			s.logger.Warn("failed to remove asset file",
				logging.String("path", path),
				logging.String("reason", reason),
				logging.Error(err),
				logging.EventType("asset_sweep_failed"),
				logging.ErrorHint("check assets_dir permissions"),
				logging.Impact("disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		s.logger.Debug("removed asset file",
			logging.String("path", path),
			logging.String("reason", reason),
			logging.EventType("asset_sweep"),
		)
	}
	return result
}

// FileInfo describes a file in the assets directory.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Partial bool
}

// List returns the files currently in the assets directory.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []FileInfo
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(s.dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Partial: filepath.Ext(entry.Name()) == PartSuffix,
		})
	}
	return files, nil
}

// Usage sums the sizes of the files in the assets directory.
func (s *Store) Usage() (int64, error) {
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}
