package dsindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FilesOptions controls how NewFilesIndex turns paths into identifiers.
type FilesOptions struct {
	// NoExt strips the file extension from identifiers.
	NoExt bool

	// Dirs indexes directories instead of regular files.
	Dirs bool

	// Sort orders identifiers lexically instead of in glob order.
	Sort bool
}

// FilesIndex is an index of files (or directories) found by a glob pattern.
// Identifiers are base names; Path maps them back to the full path.
type FilesIndex struct {
	*Index[string]

	// paths is shared by every index derived from the same glob and is never
	// written after construction.
	paths map[string]string
}

// NewFilesIndex globs pattern and indexes every match. Two matches with the
// same identifier are an error, since identifiers must be unique.
func NewFilesIndex(pattern string, opts FilesOptions) (*FilesIndex, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}

	paths := make(map[string]string, len(matches))
	ids := make([]string, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.IsDir() != opts.Dirs {
			continue
		}
		id := filepath.Base(path)
		if opts.NoExt {
			id = strings.TrimSuffix(id, filepath.Ext(id))
		}
		if prev, ok := paths[id]; ok {
			return nil, fmt.Errorf("%w: %q from both %s and %s", ErrDuplicateID, id, prev, path)
		}
		paths[id] = path
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no files found matching pattern: %s", pattern)
	}
	if opts.Sort {
		sort.Strings(ids)
	}
	return &FilesIndex{Index: fromUnique(ids), paths: paths}, nil
}

// Path returns the file path behind id.
func (f *FilesIndex) Path(id string) (string, bool) {
	if !f.Contains(id) {
		return "", false
	}
	p, ok := f.paths[id]
	return p, ok
}

// Paths returns the file paths in index order.
func (f *FilesIndex) Paths() []string {
	out := make([]string, f.Len())
	for i := range f.Len() {
		out[i] = f.paths[f.At(i)]
	}
	return out
}

// Derive implements Indexer, keeping path lookup on the derived index.
func (f *FilesIndex) Derive(ids []string) Indexer[string] {
	return &FilesIndex{Index: fromUnique(ids), paths: f.paths}
}

// CreateSubset is Index.CreateSubset returning a *FilesIndex.
func (f *FilesIndex) CreateSubset(other Indexer[string]) (*FilesIndex, error) {
	ids, err := subsetIDs[string](f, other)
	if err != nil {
		return nil, err
	}
	return &FilesIndex{Index: fromUnique(ids), paths: f.paths}, nil
}

// CreateBatch is Index.CreateBatch returning a *FilesIndex.
func (f *FilesIndex) CreateBatch(ids []string) (*FilesIndex, error) {
	out, err := batchIDs[string](f, ids)
	if err != nil {
		return nil, err
	}
	return &FilesIndex{Index: fromUnique(out), paths: f.paths}, nil
}

// CreateBatchAt is Index.CreateBatchAt returning a *FilesIndex.
func (f *FilesIndex) CreateBatchAt(positions []int) (*FilesIndex, error) {
	out, err := batchPositions[string](f, positions)
	if err != nil {
		return nil, err
	}
	return &FilesIndex{Index: fromUnique(out), paths: f.paths}, nil
}
