package assetstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"signage/internal/catalog"
	"signage/internal/logging"
)

const copyBufferSize = 32 * 1024

// ReadFunc observes a transfer: bytes read so far for the current asset and
// the content length announced by the source, or -1 when unknown.
type ReadFunc func(read, contentLength int64)

// FetchResult describes a completed transfer.
type FetchResult struct {
	Path          string
	Written       int64
	ContentLength int64
}

// Fetch streams the asset into PathFor(asset)+".part" and renames it into
// place once the copy (and, when verify is set and a digest is declared, the
// hash check) succeeds. The partial file is removed on failure.
func (s *Store) Fetch(ctx context.Context, asset catalog.Asset, verify bool, onRead ReadFunc) (FetchResult, error) {
	dest := s.PathFor(asset)
	result := FetchResult{Path: dest, ContentLength: -1}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return result, fmt.Errorf("ensure assets dir: %w", err)
	}

	body, contentLength, err := s.open(ctx, asset.RemoteURL)
	if err != nil {
		return result, err
	}
	defer body.Close()
	result.ContentLength = contentLength

	part := dest + PartSuffix
	out, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return result, fmt.Errorf("create partial file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Close()
			_ = os.Remove(part)
		}
	}()

	var digest hash.Hash
	expected := strings.ToLower(strings.TrimSpace(asset.Hash))
	if verify && expected != "" {
		digest = newDigest(expected)
		if digest == nil {
			s.logger.Warn("asset hash has unrecognized length; skipping verification",
				logging.AssetID(asset.ID),
				logging.Int("hash_length", len(expected)),
				logging.EventType("hash_unrecognized"),
				logging.ErrorHint("publish sha256 or sha1 hex digests"),
				logging.Alert("integrity_unchecked"),
			)
		}
	}
	var sink io.Writer = out
	if digest != nil {
		sink = io.MultiWriter(out, digest)
	}

	written, err := copyContext(ctx, sink, body, func(read int64) {
		if onRead != nil {
			onRead(read, contentLength)
		}
	})
	result.Written = written
	if err != nil {
		return result, err
	}
	if err := out.Sync(); err != nil {
		return result, fmt.Errorf("sync partial file: %w", err)
	}
	if err := out.Close(); err != nil {
		return result, fmt.Errorf("close partial file: %w", err)
	}
	if contentLength > 0 && written != contentLength {
		return result, fmt.Errorf("short transfer: got %d of %d bytes", written, contentLength)
	}
	if digest != nil {
		if got := hex.EncodeToString(digest.Sum(nil)); got != expected {
			return result, fmt.Errorf("%w: asset %s got %s want %s", ErrHashMismatch, asset.ID, got, expected)
		}
	}
	if err := os.Rename(part, dest); err != nil {
		return result, fmt.Errorf("rename partial file: %w", err)
	}
	committed = true
	return result, nil
}

// open returns a reader for the asset source and its content length.
// http(s) URLs are fetched; file URLs and bare paths are opened directly.
func (s *Store) open(ctx context.Context, raw string) (io.ReadCloser, int64, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, -1, fmt.Errorf("parse asset url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
		if err != nil {
			return nil, -1, fmt.Errorf("build asset request: %w", err)
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return nil, -1, fmt.Errorf("asset request failed: %w", err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, -1, fmt.Errorf("asset request failed (%s)", resp.Status)
		}
		return resp.Body, resp.ContentLength, nil
	case "file", "":
		path := parsed.Path
		if path == "" {
			return nil, -1, errors.New("asset url has no path")
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, -1, fmt.Errorf("open asset source: %w", err)
		}
		size := int64(-1)
		if info, err := file.Stat(); err == nil {
			size = info.Size()
		}
		return file, size, nil
	default:
		return nil, -1, fmt.Errorf("unsupported asset url scheme %q", parsed.Scheme)
	}
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader, progress func(int64)) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write asset data: %w", err)
			}
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read asset data: %w", readErr)
		}
	}
}
