// Package notestore implements a document store over markdown files with
// YAML frontmatter, keyed by slug. One file per document; writes go
// through a temp file and rename so readers never observe a partial write.
package notestore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yeonjae-dev/bizradar/internal/common"
)

const (
	delimiter = "---\n"
	extension = ".md"
)

// Store is a filesystem-backed note store rooted at a single directory.
type Store struct {
	root string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: note store directory is required", common.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create note store directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// path maps a slug to its file, rejecting traversal attempts.
func (s *Store) path(slug string) (string, error) {
	if slug == "" {
		return "", fmt.Errorf("slug cannot be empty")
	}
	clean := filepath.Clean(slug)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid slug %q", slug)
	}
	return filepath.Join(s.root, clean+extension), nil
}

// Exists reports whether a document with the given slug is present.
func (s *Store) Exists(ctx context.Context, slug string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(slug)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat note %s: %w", slug, err)
	}
	return true, nil
}

// Read loads a document, decoding its frontmatter into meta when meta is
// non-nil, and returns the body content.
func (s *Store) Read(ctx context.Context, slug string, meta any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(slug)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("note %s: %w", slug, common.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read note %s: %w", slug, err)
	}

	front, body := split(string(raw))
	if meta != nil && front != "" {
		if err := yaml.Unmarshal([]byte(front), meta); err != nil {
			return "", fmt.Errorf("failed to decode frontmatter of %s: %w", slug, err)
		}
	}
	return body, nil
}

// Write stores a document, replacing any existing one with the same slug.
func (s *Store) Write(ctx context.Context, slug string, meta any, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(slug)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create note directory: %w", err)
	}

	var sb strings.Builder
	if meta != nil {
		front, err := yaml.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode frontmatter of %s: %w", slug, err)
		}
		sb.WriteString(delimiter)
		sb.Write(front)
		sb.WriteString(delimiter)
		sb.WriteString("\n")
	}
	sb.WriteString(content)

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o640); err != nil {
		return fmt.Errorf("failed to write note %s: %w", slug, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to commit note %s: %w", slug, err)
	}
	return nil
}

// List returns all slugs under the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var slugs []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, extension) || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		slug := filepath.ToSlash(strings.TrimSuffix(rel, extension))
		if strings.HasPrefix(slug, prefix) {
			slugs = append(slugs, slug)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	sort.Strings(slugs)
	return slugs, nil
}

// split separates frontmatter from body. Documents without a leading
// delimiter are all body.
func split(raw string) (front, body string) {
	if !strings.HasPrefix(raw, delimiter) {
		return "", raw
	}
	rest := raw[len(delimiter):]
	end := strings.Index(rest, delimiter)
	if end < 0 {
		return "", raw
	}
	front = rest[:end]
	body = strings.TrimPrefix(rest[end+len(delimiter):], "\n")
	return front, body
}
