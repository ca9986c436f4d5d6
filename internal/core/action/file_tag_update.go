package action

import (
	"slices"

	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/state"
)

// FileTagUpdate adds and removes tags on files. All additions are applied in
// order before all removals. Pairs naming a file that is not loaded are
// skipped.
type FileTagUpdate struct {
	ToAdd    []gallery.FileTag `json:"toAdd"`
	ToRemove []gallery.FileTag `json:"toRemove"`
}

var _ Action = FileTagUpdate{}

// AddFileTags returns an update that tags each file in pairs.
func AddFileTags(pairs ...gallery.FileTag) FileTagUpdate {
	return FileTagUpdate{ToAdd: slices.Clone(pairs), ToRemove: []gallery.FileTag{}}
}

// RemoveFileTags returns an update that untags each file in pairs.
func RemoveFileTags(pairs ...gallery.FileTag) FileTagUpdate {
	return FileTagUpdate{ToAdd: []gallery.FileTag{}, ToRemove: slices.Clone(pairs)}
}

func (FileTagUpdate) Kind() Kind { return KindFileTagUpdate }

func (FileTagUpdate) StateNeeded() []state.Slice { return []state.Slice{state.SliceFiles} }

// Apply appends added tags even when the file already carries them and
// removes only the first occurrence of a removed tag.
func (a FileTagUpdate) Apply(snapshot state.Slices) state.Slices {
	files := snapshot.Files()
	if files == nil {
		files = []gallery.FileInfo{}
	}

	for _, ft := range a.ToAdd {
		i := gallery.FindFile(files, ft.File)
		if i < 0 {
			continue
		}
		files[i].Tags = append(files[i].Tags, ft.Tag)
	}

	for _, ft := range a.ToRemove {
		i := gallery.FindFile(files, ft.File)
		if i < 0 {
			continue
		}
		if j := slices.Index(files[i].Tags, ft.Tag); j >= 0 {
			files[i].Tags = slices.Delete(files[i].Tags, j, j+1)
		}
	}

	return state.Slices{state.SliceFiles: files}
}
