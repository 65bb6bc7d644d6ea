package fileshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrMissingCredential means a download is required but no signing key is
	// configured.
	ErrMissingCredential = errors.New("storage signing key is not configured")
	// ErrDownloadFailed wraps any rejected request or streaming fault.
	ErrDownloadFailed = errors.New("backup download failed")
)

const downloadChunkSize = 64 * 1024

// CacheEntry describes the local copy of a backup artifact. Exists true means
// the file is complete: downloads always go through a temp path that is
// renamed only after the stream finished cleanly.
type CacheEntry struct {
	LocalPath string
	Exists    bool
	SizeBytes int64
}

// Fetcher performs signed, streamed downloads of backup artifacts.
type Fetcher struct {
	client *http.Client

	// OnProgress, when set, receives an observation each time the download
	// advances by at least one percentage point of the declared length.
	OnProgress func(Progress)

	now func() time.Time
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 10 * time.Minute},
		now:    time.Now,
	}
}

// EnsureLocal materializes the backup artifact at destPath. An existing file
// short-circuits without any network call; that is the idempotence guarantee
// of the cache.
func (f *Fetcher) EnsureLocal(ctx context.Context, src Source, destPath string) (CacheEntry, error) {
	entry := CacheEntry{LocalPath: destPath}

	if fi, err := os.Stat(destPath); err == nil {
		log.Info().
			Str("action", "backup_fetch").
			Str("local", destPath).
			Int64("size_bytes", fi.Size()).
			Msg("backup already cached, skipping download")
		entry.Exists = true
		entry.SizeBytes = fi.Size()
		return entry, nil
	}

	if strings.TrimSpace(src.SigningKey) == "" {
		return entry, ErrMissingCredential
	}
	signer, err := NewSigner(src.SigningKey)
	if err != nil {
		return entry, err
	}

	if dir := filepath.Dir(destPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return entry, err
		}
	}

	date := f.now().UTC().Format(http.TimeFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return entry, err
	}
	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-version", ProtocolVersion)
	req.Header.Set("Authorization",
		signer.Authorization(src.Account, http.MethodGet, src.CanonicalResource(), date, ProtocolVersion))

	start := time.Now()
	log.Info().
		Str("action", "backup_fetch").
		Str("remote", src.URL).
		Str("local", destPath).
		Msg("starting download")

	// The response headers arrive before the body is consumed, so the
	// declared Content-Length is known up front for progress reporting.
	resp, err := f.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("action", "backup_fetch").Str("remote", src.URL).Msg("download request failed")
		return entry, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().
			Str("action", "backup_fetch").
			Str("remote", src.URL).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("download request rejected")
		return entry, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	size, err := f.streamToFile(resp.Body, destPath, resp.ContentLength)
	if err != nil {
		log.Error().Err(err).Str("action", "backup_fetch").Str("local", destPath).Msg("download stream failed")
		return entry, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	log.Info().
		Str("action", "backup_fetch").
		Str("local", destPath).
		Int64("size_bytes", size).
		Dur("elapsed_ms", time.Since(start)).
		Msg("download OK")

	entry.Exists = true
	entry.SizeBytes = size
	return entry, nil
}

// streamToFile copies body to destPath in fixed-size chunks through a temp
// file renamed on success, so a crashed download never leaves a file the
// cache check would trust.
func (f *Fetcher) streamToFile(body io.Reader, destPath string, total int64) (int64, error) {
	tmp := destPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}

	pw := &progressWriter{w: out, total: total, onStep: f.observe}
	buf := make([]byte, downloadChunkSize)
	n, err := io.CopyBuffer(pw, body, buf)

	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, destPath); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

func (f *Fetcher) observe(p Progress) {
	log.Debug().
		Str("action", "backup_fetch").
		Int64("bytes", p.BytesTransferred).
		Int64("total", p.TotalBytes).
		Int64("percent", p.Percent()).
		Msg("download progress")
	if f.OnProgress != nil {
		f.OnProgress(p)
	}
}
