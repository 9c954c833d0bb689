package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/roadlens/internal/location"
)

// Dir serves candidates from a local copy of the published site.
type Dir struct {
	root string
}

// NewDir creates a directory fetcher rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory the fetcher reads from.
func (d *Dir) Root() string {
	return d.root
}

// Locate implements Locator.
func (d *Dir) Locate(candidate string) string {
	return filepath.Join(d.root, filepath.FromSlash(location.Normalize(candidate)))
}

// Fetch implements Fetcher.
func (d *Dir) Fetch(ctx context.Context, candidate string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if location.IsAbsoluteURL(candidate) {
		return nil, fmt.Errorf("directory origin cannot fetch %s", candidate)
	}

	clean := location.Normalize(candidate)
	full := d.Locate(candidate)

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &StatusError{URL: clean, StatusCode: 404}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", clean, err)
	}
	if info.IsDir() {
		return nil, &StatusError{URL: clean, StatusCode: 404}
	}

	data, err := os.ReadFile(full) //nolint:gosec // path is normalised and joined under root
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", clean, err)
	}
	return data, nil
}
