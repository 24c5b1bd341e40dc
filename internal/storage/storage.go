package storage

import (
	"context"
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

	"montage/internal/config"
	"montage/internal/fileutil"
	"montage/internal/services"
)

// Store publishes and fetches objects.
type Store interface {
	Put(ctx context.Context, local, key, contentType string) (string, error)
	Get(ctx context.Context, ref string) (string, func(), error)
}

// Local is a filesystem-backed Store.
type Local struct {
	root    string
	baseURL string
	workDir string
	client  *http.Client
}

// NewLocal builds a store rooted at root. Downloads land under workDir.
func NewLocal(root, baseURL, workDir string) *Local {
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		workDir: workDir,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// NewFromConfig builds the configured store.
func NewFromConfig(cfg *config.Config) *Local {
	return NewLocal(cfg.Storage.Root, cfg.Storage.PublicBaseURL, cfg.Paths.WorkDir)
}

// WithHTTPClient replaces the download client.
func (l *Local) WithHTTPClient(client *http.Client) {
	if l != nil && client != nil {
		l.client = client
	}
}

// Put copies local into the store under key and returns its public URL. The
// local store ignores contentType.
func (l *Local) Put(ctx context.Context, local, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(l.root, filepath.FromSlash(clean))
	tmp := dst + ".part"
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}
	if err := fileutil.CopyFileVerified(local, tmp); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "storage", "put", "source file missing", err)
		}
		return "", fmt.Errorf("storage: put %s: %w", clean, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: put %s: %w", clean, err)
	}
	return l.URL(clean), nil
}

// URL returns the public URL for key.
func (l *Local) URL(key string) string {
	key = strings.TrimLeft(key, "/")
	if l.baseURL == "" {
		return "file://" + filepath.ToSlash(filepath.Join(l.root, filepath.FromSlash(key)))
	}
	return l.baseURL + "/" + key
}

// Get resolves ref to a readable local path. cleanup is never nil.
func (l *Local) Get(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", noop, services.Wrap(services.ErrValidation, "storage", "get", "empty reference", nil)
	}
	if l.baseURL != "" && strings.HasPrefix(ref, l.baseURL+"/") {
		key, err := cleanKey(strings.TrimPrefix(ref, l.baseURL+"/"))
		if err != nil {
			return "", noop, err
		}
		return statLocal(filepath.Join(l.root, filepath.FromSlash(key)))
	}
	switch {
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", noop, services.Wrap(services.ErrValidation, "storage", "get", "invalid file url", err)
		}
		return statLocal(u.Path)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.download(ctx, ref)
	default:
		return statLocal(ref)
	}
}

func statLocal(p string) (string, func(), error) {
	noop := func() {}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", noop, services.Wrap(services.ErrNotFound, "storage", "get", "object not found: "+p, err)
		}
		return "", noop, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return p, noop, nil
}

func (l *Local) download(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	u, err := url.Parse(ref)
	if err != nil {
		return "", noop, services.Wrap(services.ErrValidation, "storage", "get", "invalid url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", noop, services.Wrap(services.ErrValidation, "storage", "get", "build request", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", noop, ctx.Err()
		}
		return "", noop, services.Wrap(services.ErrTransient, "storage", "get", "download failed", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", noop, services.Wrap(services.ErrNotFound, "storage", "get", "object not found: "+ref, nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", noop, services.Wrap(services.ErrTransient, "storage", "get", fmt.Sprintf("download returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return "", noop, services.Wrap(services.ErrValidation, "storage", "get", fmt.Sprintf("download returned %d", resp.StatusCode), nil)
	}

	if err := os.MkdirAll(l.workDir, 0o755); err != nil {
		return "", noop, fmt.Errorf("storage: create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(l.workDir, "fetch-")
	if err != nil {
		return "", noop, fmt.Errorf("storage: create temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "object"
	}
	dst := filepath.Join(dir, name)
	file, err := os.Create(dst)
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("storage: create %s: %w", dst, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		cleanup()
		if ctx.Err() != nil {
			return "", noop, ctx.Err()
		}
		return "", noop, services.Wrap(services.ErrTransient, "storage", "get", "download interrupted", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("storage: close %s: %w", dst, err)
	}
	return dst, cleanup, nil
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := path.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", services.Wrap(services.ErrValidation, "storage", "key", "empty object key", nil)
	}
	return clean, nil
}
