package dsindex

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// formatVersion is incremented when the on-disk index format changes.
const formatVersion = 1

// indexFormat is the gob representation of an index.
type indexFormat[K comparable] struct {
	Version int
	IDs     []K
}

// Save writes the index to w using encoding/gob.
func (x *Index[K]) Save(w io.Writer) error {
	f := indexFormat[K]{Version: formatVersion, IDs: x.ids}
	if err := gob.NewEncoder(w).Encode(&f); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load[K comparable](r io.Reader) (*Index[K], error) {
	var f indexFormat[K]
	if err := gob.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("index version mismatch: file=%d expected=%d", f.Version, formatVersion)
	}
	return New(f.IDs)
}

// SaveFile writes the index to path atomically: the data goes to a temp file
// in the same directory which is then renamed over path.
func (x *Index[K]) SaveFile(path string) error {
	if path == "" {
		return fmt.Errorf("empty index path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	if err := x.Save(tmpFile); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		klog.Warningf("sync temp index file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp index to target: %w", err)
	}
	return nil
}

// LoadFile reads an index saved with SaveFile.
func LoadFile[K comparable](path string) (*Index[K], error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}
	defer fh.Close()
	return Load[K](fh)
}
