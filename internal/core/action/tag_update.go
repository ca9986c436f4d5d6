package action

import (
	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/state"
)

// TagUpdate replaces the whole tag list. Concurrent updates resolve as
// last-writer-wins; lists are never merged.
type TagUpdate struct {
	Tags []gallery.Tag `json:"tags"`
}

var _ Action = TagUpdate{}

// NewTagUpdate returns a TagUpdate holding its own copy of tags.
func NewTagUpdate(tags []gallery.Tag) TagUpdate {
	return TagUpdate{Tags: gallery.CloneTags(tags)}
}

func (TagUpdate) Kind() Kind { return KindTagUpdate }

func (TagUpdate) StateNeeded() []state.Slice { return []state.Slice{state.SliceTags} }

func (a TagUpdate) Apply(state.Slices) state.Slices {
	// the payload is copied so later store mutations never reach the queued action
	return state.Slices{state.SliceTags: gallery.CloneTags(a.Tags)}
}
