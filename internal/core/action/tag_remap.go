package action

import (
	"maps"

	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/state"
)

// TagRemap replaces temporary tag ids with the real ids the backend assigned.
// It rewrites tag ids, parent references and file associations. Ids not in
// the mapping are left untouched.
type TagRemap struct {
	IDs map[gallery.TagID]gallery.TagID `json:"ids"`
}

var _ Action = TagRemap{}

// NewTagRemap returns a TagRemap holding its own copy of ids.
func NewTagRemap(ids map[gallery.TagID]gallery.TagID) TagRemap {
	return TagRemap{IDs: maps.Clone(ids)}
}

func (TagRemap) Kind() Kind { return KindTagRemap }

func (TagRemap) StateNeeded() []state.Slice {
	return []state.Slice{state.SliceTags, state.SliceFiles}
}

// RenamesOnly reports that the action only renames identifiers, so it can be
// applied underneath queued local actions without discarding them.
func (TagRemap) RenamesOnly() bool { return true }

func (a TagRemap) Apply(snapshot state.Slices) state.Slices {
	tags := snapshot.Tags()
	if tags == nil {
		tags = []gallery.Tag{}
	}
	files := snapshot.Files()
	if files == nil {
		files = []gallery.FileInfo{}
	}

	for i := range tags {
		tags[i].ID = a.resolve(tags[i].ID)
		if tags[i].Parent != nil {
			parent := a.resolve(*tags[i].Parent)
			tags[i].Parent = &parent
		}
	}
	for i := range files {
		for j, id := range files[i].Tags {
			files[i].Tags[j] = a.resolve(id)
		}
	}

	return state.Slices{state.SliceTags: tags, state.SliceFiles: files}
}

func (a TagRemap) resolve(id gallery.TagID) gallery.TagID {
	if realID, ok := a.IDs[id]; ok {
		return realID
	}
	return id
}
