package corpus

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// maxDownloadSize caps the decompressed corpus size.
const maxDownloadSize = 256 * 1024 * 1024

// EnsureCorpus checks that a corpus exists at path. If it does not and url is
// set, the corpus is downloaded (plain text or gzip) and written to path.
func EnsureCorpus(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("corpus: %s does not exist and no download url is configured", path)
	}

	slog.Info("corpus not found, downloading", "path", path, "url", url)
	return download(ctx, &http.Client{Timeout: 60 * time.Second}, url, path)
}

func download(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "typohmm-cli")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("corpus: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("corpus: download failed: %s", resp.Status)
	}

	// Detect gzip by its magic bytes rather than trusting the url suffix.
	br := bufio.NewReader(resp.Body)
	var body io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("corpus: failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	// Write to a temp file next to the destination so a partial download never
	// looks like a valid corpus.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".corpus-*")
	if err != nil {
		return fmt.Errorf("corpus: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, maxDownloadSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("corpus: failed to write corpus: %w", err)
	}
	if n > maxDownloadSize {
		return fmt.Errorf("corpus: download exceeds %d bytes", maxDownloadSize)
	}
	return os.Rename(tmp.Name(), destPath)
}
