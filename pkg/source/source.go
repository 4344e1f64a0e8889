package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// maxBodySize limits fetched HTML to 10 MB.
const maxBodySize = 10 * 1024 * 1024

// Article is the readable text extracted from a web page.
type Article struct {
	Title  string
	Byline string
	Text   string
}

// DefaultClient is used by FetchArticle when no client is given.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// FetchArticle downloads rawURL and extracts its main text with readability.
// Ruby annotations are removed first so furigana does not duplicate words.
func FetchArticle(ctx context.Context, client *http.Client, rawURL string) (*Article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("source: parse url: %w", err)
	}
	if client == nil {
		client = DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("source: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: got status code %d", resp.StatusCode)
	}
	if resp.ContentLength > int64(maxBodySize) {
		return nil, fmt.Errorf("source: content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)
	}

	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("source: read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("source: response body exceeded maximum size limit of %d bytes", maxBodySize)
	}

	article, err := readability.FromReader(bytes.NewReader(SanitizeRuby(body)), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("source: extract article: %w", err)
	}
	return &Article{
		Title:  article.Title,
		Byline: article.Byline,
		Text:   article.TextContent,
	}, nil
}

// Lines returns the non-blank lines of text with surrounding space trimmed.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content, so "<ruby>漢字<rt>かんじ</rt></ruby>" reads as "漢字".
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
