package document

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	cacheTTL           = 24 * time.Hour
	partialSuffix      = ".part"
	metaSuffix         = ".meta"
	defaultHTTPTimeout = 90 * time.Second

	// MaxDownloadBytes caps a single document download.
	MaxDownloadBytes = 256 << 20
)

// ErrTooLarge is returned when a download exceeds MaxDownloadBytes.
var ErrTooLarge = errors.New("document: download exceeds size limit")

// Cache downloads remote documents once and revalidates them with
// conditional requests. Interrupted downloads resume with a Range request.
type Cache struct {
	dir    string
	client *http.Client
	ttl    time.Duration
	log    *zap.Logger
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
	CachedAt     time.Time `json:"cachedAt"`
	Size         int64     `json:"size"`
}

type cachePaths struct {
	file, meta, partial string
}

// NewCache creates dir if needed. A nil client gets a generous timeout.
func NewCache(dir string, client *http.Client, logger *zap.Logger) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = filepath.Join(os.TempDir(), "lumen-cache")
		}
		dir = filepath.Join(base, "lumen", "documents")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{dir: dir, client: client, ttl: cacheTTL, log: logger.Named("cache")}, nil
}

// Dir is the directory documents are cached in.
func (c *Cache) Dir() string { return c.dir }

// Fetch returns a local path for rawURL. A stale copy is served when the
// refresh fails.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	p := c.pathsFor(rawURL)

	if info, err := os.Stat(p.file); err == nil && time.Since(info.ModTime()) < c.ttl && info.Size() > 0 {
		return p.file, nil
	}

	meta, _ := readMeta(p.meta)
	current, _ := os.Stat(p.file)
	got, err := c.download(ctx, rawURL, p, meta, current)
	if err == nil {
		return got, nil
	}
	if current != nil && current.Size() > 0 {
		c.log.Warn("serving stale document", zap.String("url", rawURL), zap.Error(err))
		return p.file, nil
	}
	return "", err
}

func (c *Cache) download(ctx context.Context, rawURL string, p cachePaths, meta cacheMeta, current os.FileInfo) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	if current != nil && current.Size() > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	var resumeFrom int64
	if info, err := os.Stat(p.partial); err == nil && info.Size() > 0 {
		resumeFrom = info.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
		switch {
		case meta.ETag != "":
			req.Header.Set("If-Range", meta.ETag)
		case meta.LastModified != "":
			req.Header.Set("If-Range", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if current != nil && current.Size() > 0 {
			meta.CachedAt = time.Now().UTC()
			if err := writeMeta(p.meta, meta); err != nil {
				return "", err
			}
			now := time.Now()
			_ = os.Chtimes(p.file, now, now)
			return p.file, nil
		}
		return c.download(ctx, rawURL, p, cacheMeta{}, nil)
	case http.StatusOK:
		return c.save(resp, p, false)
	case http.StatusPartialContent:
		return c.save(resp, p, resumeFrom > 0)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("document download failed: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
}

func (c *Cache) save(resp *http.Response, p cachePaths, appendExisting bool) (string, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendExisting {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(p.partial, flags, 0o644)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(file, io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err == nil && written > MaxDownloadBytes {
		err = ErrTooLarge
	}
	if err != nil {
		file.Close()
		if errors.Is(err, ErrTooLarge) {
			_ = os.Remove(p.partial)
		}
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(p.partial, p.file); err != nil {
		return "", err
	}

	meta := cacheMeta{
		URL:          resp.Request.URL.String(),
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
		CachedAt:     time.Now().UTC(),
	}
	if info, err := os.Stat(p.file); err == nil {
		meta.Size = info.Size()
	}
	if err := writeMeta(p.meta, meta); err != nil {
		return "", err
	}
	c.log.Info("document cached",
		zap.String("url", meta.URL),
		zap.String("content_type", meta.ContentType),
		zap.Int64("bytes", meta.Size),
	)
	return p.file, nil
}

// Forget deletes the cached copy of rawURL, including partial downloads. It
// reports whether anything was removed.
func (c *Cache) Forget(rawURL string) (bool, error) {
	p := c.pathsFor(rawURL)
	removed := false
	for _, name := range []string{p.file, p.meta, p.partial} {
		err := os.Remove(name)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return removed, err
		}
	}
	return removed, nil
}

// pathsFor keeps the URL's extension so the loader can detect the format.
func (c *Cache) pathsFor(rawURL string) cachePaths {
	sum := sha1.Sum([]byte(rawURL))
	key := hex.EncodeToString(sum[:])
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	return cachePaths{
		file:    filepath.Join(c.dir, key+ext),
		meta:    filepath.Join(c.dir, key+metaSuffix),
		partial: filepath.Join(c.dir, key+partialSuffix),
	}
}

func readMeta(path string) (cacheMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheMeta{}, err
	}
	var meta cacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func writeMeta(path string, meta cacheMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
