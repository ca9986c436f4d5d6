// Package state holds the client-side copy of the gallery state shared with
// the backend. The store is read by presentation code and written only by
// the sync engine (and once at startup from the bootstrap payload).
package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/pkg/kv"
)

// Slice names an independently readable and writable portion of the state.
type Slice string

const (
	SliceTags    Slice = "tags"
	SliceFiles   Slice = "files"
	SliceFolders Slice = "folders"
)

// AllSlices lists every known slice in a stable order.
var AllSlices = []Slice{SliceTags, SliceFiles, SliceFolders}

// ErrUnknownSlice is returned for slice names the store does not hold.
var ErrUnknownSlice = errors.New("unknown state slice")

// Slices maps slice names to slice values. Values are []gallery.Tag for
// tags, []gallery.FileInfo for files and []string for folders.
type Slices map[Slice]any

// Tags returns the tags slice, or nil when absent.
func (s Slices) Tags() []gallery.Tag {
	v, _ := s[SliceTags].([]gallery.Tag)
	return v
}

// Files returns the files slice, or nil when absent.
func (s Slices) Files() []gallery.FileInfo {
	v, _ := s[SliceFiles].([]gallery.FileInfo)
	return v
}

// Folders returns the folders slice, or nil when absent.
func (s Slices) Folders() []string {
	v, _ := s[SliceFolders].([]string)
	return v
}

// Names returns the slice names present in s, in AllSlices order.
func (s Slices) Names() []Slice {
	var names []Slice
	for _, name := range AllSlices {
		if _, ok := s[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Check verifies that v has the type expected for the named slice.
func Check(name Slice, v any) error {
	var ok bool
	switch name {
	case SliceTags:
		_, ok = v.([]gallery.Tag)
	case SliceFiles:
		_, ok = v.([]gallery.FileInfo)
	case SliceFolders:
		_, ok = v.([]string)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSlice, name)
	}
	if !ok {
		return fmt.Errorf("slice %q: unexpected value type %T", name, v)
	}
	return nil
}

// Clone deep copies the value of the named slice.
func Clone(name Slice, v any) (any, error) {
	if err := Check(name, v); err != nil {
		return nil, err
	}
	switch name {
	case SliceTags:
		return gallery.CloneTags(v.([]gallery.Tag)), nil
	case SliceFiles:
		return gallery.CloneFiles(v.([]gallery.FileInfo)), nil
	default:
		return gallery.CloneFolders(v.([]string)), nil
	}
}

// Store is the observable container of the gallery state.
type Store struct {
	data *kv.Store[Slice, any]
}

// New creates a store seeded from a bootstrap payload.
func New(b gallery.Bootstrap) *Store {
	s := &Store{data: kv.New[Slice, any]()}
	s.Reset(b)
	return s
}

// Reset re-seeds every slice from a bootstrap payload.
func (s *Store) Reset(b gallery.Bootstrap) {
	s.data.Replace(map[Slice]any{
		SliceTags:    gallery.CloneTags(b.Tags),
		SliceFiles:   gallery.CloneFiles(b.Files),
		SliceFolders: gallery.CloneFolders(b.Folders),
	})
}

// Snapshot returns deep copies of the named slices, read under one lock.
// Unknown names are ignored.
func (s *Store) Snapshot(names ...Slice) Slices {
	raw := s.data.GetBatch(names...)
	out := make(Slices, len(raw))
	for name, v := range raw {
		cloned, err := Clone(name, v)
		if err != nil {
			continue
		}
		out[name] = cloned
	}
	return out
}

// Commit writes every slice in values as one atomic batch. Nothing is
// written when any value fails validation.
func (s *Store) Commit(values Slices) error {
	if len(values) == 0 {
		return nil
	}
	batch := make(map[Slice]any, len(values))
	for name, v := range values {
		if err := Check(name, v); err != nil {
			return fmt.Errorf("commit state: %w", err)
		}
		batch[name] = v
	}
	s.data.SetBatch(batch)
	return nil
}

// Tags returns a copy of the current tag list.
func (s *Store) Tags() []gallery.Tag {
	return s.Snapshot(SliceTags).Tags()
}

// Files returns a copy of the currently loaded files.
func (s *Store) Files() []gallery.FileInfo {
	return s.Snapshot(SliceFiles).Files()
}

// Folders returns a copy of the known folder paths.
func (s *Store) Folders() []string {
	return s.Snapshot(SliceFolders).Folders()
}

// Bootstrap returns the whole state in bootstrap form.
func (s *Store) Bootstrap() gallery.Bootstrap {
	snap := s.Snapshot(AllSlices...)
	return gallery.Bootstrap{
		Tags:    snap.Tags(),
		Folders: snap.Folders(),
		Files:   snap.Files(),
	}
}

// Contains reports whether name is one of the given slices.
func Contains(names []Slice, name Slice) bool {
	return slices.Contains(names, name)
}
