package assetstore

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"signage/internal/catalog"
	"signage/internal/logging"
)

// PartSuffix marks an in-progress download.
const PartSuffix = ".part"

var (
	// ErrStaleLocalFile means a recorded local file is missing or its length
	// does not match the declared size.
	ErrStaleLocalFile = errors.New("assetstore: stale local file")
	// ErrInsufficientSpace means the download would leave less than the
	// configured reserve on the assets volume.
	ErrInsufficientSpace = errors.New("assetstore: insufficient free space")
	// ErrHashMismatch means the downloaded bytes do not match the declared digest.
	ErrHashMismatch = errors.New("assetstore: hash mismatch")
)

// Store manages the assets directory.
type Store struct {
	dir    string
	http   *http.Client
	logger *slog.Logger
	statfs func(path string) (uint64, error)
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithHTTPClient replaces the client used for remote fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.http = client
		}
	}
}

// WithFreeSpaceFunc overrides the free-space probe (used by tests).
func WithFreeSpaceFunc(fn func(path string) (uint64, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.statfs = fn
		}
	}
}

// New returns a Store rooted at dir.
func New(dir string, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		dir:    dir,
		http:   &http.Client{},
		logger: logging.NewComponentLogger(logger, "assetstore"),
		statfs: freeBytes,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the assets directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the destination path for an asset.
func (s *Store) PathFor(asset catalog.Asset) string {
	return filepath.Join(s.dir, safeName(asset.ID)+"."+GuessExt(asset.MediaType, asset.RemoteURL))
}

// FileSize returns the length of the regular file at path.
func FileSize(path string) (int64, bool) {
	if strings.TrimSpace(path) == "" {
		return 0, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// CheckLocal reports whether the asset's recorded local file is usable. It
// returns ErrStaleLocalFile when a path is recorded but the file is missing
// or has the wrong length, and a nil error with ok=false when nothing was
// recorded yet.
func CheckLocal(asset catalog.Asset) (bool, error) {
	if asset.LocalPath == "" {
		return false, nil
	}
	size, ok := FileSize(asset.LocalPath)
	if !ok {
		return false, fmt.Errorf("%w: %s missing", ErrStaleLocalFile, asset.LocalPath)
	}
	if asset.HasDeclaredSize() && size != asset.SizeBytes {
		return false, fmt.Errorf("%w: %s has %d bytes, want %d", ErrStaleLocalFile, asset.LocalPath, size, asset.SizeBytes)
	}
	return true, nil
}

// NeedsDownload reports whether the asset must be fetched.
func NeedsDownload(asset catalog.Asset) bool {
	ok, _ := CheckLocal(asset)
	return !ok
}

// EnsureSpace fails with ErrInsufficientSpace when writing need bytes would
// leave less than reserve bytes free. A failing probe is logged and ignored.
func (s *Store) EnsureSpace(need, reserve int64) error {
	if reserve <= 0 && need <= 0 {
		return nil
	}
	free, err := s.statfs(s.dir)
	if err != nil {
		s.logger.Debug("free space probe failed", logging.String("dir", s.dir), logging.Error(err))
		return nil
	}
	if need < 0 {
		need = 0
	}
	if int64(free)-need < reserve {
		return fmt.Errorf("%w: %d bytes free, need %d plus %d reserve", ErrInsufficientSpace, free, need, reserve)
	}
	return nil
}

// FreeBytes reports free space on the assets volume.
func (s *Store) FreeBytes() (uint64, error) {
	return s.statfs(s.dir)
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// newDigest selects a hash by hex length: 64 is SHA-256, 40 is SHA-1.
func newDigest(expected string) hash.Hash {
	switch len(expected) {
	case sha256.Size * 2:
		return sha256.New()
	case sha1.Size * 2:
		return sha1.New()
	default:
		return nil
	}
}

// VerifyFile checks the file at path against a hex digest. Digests of an
// unrecognized length are not checked.
func VerifyFile(path, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	h := newDigest(expected)
	if h == nil {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(h, file); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != expected {
		return fmt.Errorf("%w: got %s want %s", ErrHashMismatch, got, expected)
	}
	return nil
}

// Remove deletes path, ignoring files that are already gone.
func (s *Store) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
