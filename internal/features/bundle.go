package features

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/goccy/go-json"

	"github.com/hoopsml/shotpredict/internal/fsutil"
)

// ErrBundleMissing is returned by LoadBundle when no bundle has been written.
var ErrBundleMissing = errors.New("split bundle missing")

// SaveBundle replaces the bundle at path. Readers never see a partial file.
func SaveBundle(path string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("refusing to save bundle: %w", err)
	}
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(b)
	})
}

// LoadBundle reads and validates the bundle at path.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBundleMissing, path)
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return &b, nil
}
