// Package volumeio reads and writes 3D volumes, choosing the file format from
// the path's extension.
package volumeio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"medialcurve/internal/models"
)

// WriteOptions controls how a volume is serialized
type WriteOptions struct {
	// ElementType is the on-disk sample type; the zero value means MET_FLOAT
	ElementType ElementType

	// Compress stores the samples zlib compressed when the format supports it
	Compress bool
}

// Codec reads and writes one file format
type Codec interface {
	Decode(path string) (*models.Volume, error)
	Encode(vol *models.Volume, path string, opts WriteOptions) error
}

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{}
)

func init() {
	Register(".mha", MetaImage{})
	Register(".mhd", MetaImage{})
}

// Register associates a codec with a file extension such as ".mha".
func Register(ext string, c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[strings.ToLower(ext)] = c
}

// Extensions lists the registered extensions in sorted order.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()
	exts := make([]string, 0, len(codecs))
	for ext := range codecs {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func codecFor(path string) (Codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mu.RLock()
	c, ok := codecs[ext]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported volume format %q (known: %s)", ext, strings.Join(Extensions(), ", "))
	}
	return c, nil
}

// Load reads the volume stored at path.
func Load(path string) (*models.Volume, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	vol, err := c.Decode(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vol, nil
}

// Save writes vol to path. Either the complete file appears or nothing does.
func Save(vol *models.Volume, path string, opts WriteOptions) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	if len(vol.Data) != vol.Len() {
		return fmt.Errorf("volume has %d samples, grid expects %d", len(vol.Data), vol.Len())
	}
	if err := c.Encode(vol, path, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
