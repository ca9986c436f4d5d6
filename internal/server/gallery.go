package server

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/gallery"
)

// ErrInvalidAction marks an action the backend refuses deterministically.
var ErrInvalidAction = errors.New("invalid action")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

// SeedFile is a file entry of a seed document, placed in a folder.
type SeedFile struct {
	gallery.FileInfo
	Folder string `json:"folder"`
}

// Seed is the initial content of the backend gallery.
type Seed struct {
	Tags    []gallery.Tag `json:"tags"`
	Folders []string      `json:"folders"`
	Files   []SeedFile    `json:"files"`
}

// Gallery is the authoritative in-memory gallery. Tags carry real numeric
// ids; temporary ids sent by clients are mapped to real ones and the mapping
// is kept so later batches can still refer to them.
type Gallery struct {
	mu      sync.RWMutex
	tags    []gallery.Tag
	files   []gallery.FileInfo
	folders []string
	fileDir map[string]string
	tempIDs map[gallery.TagID]gallery.TagID
	nextID  int64

	// remapped collects the temporary ids a batch referred to
	remapped map[gallery.TagID]gallery.TagID
}

// NewGallery builds a gallery from seed. Seed tags must use numeric ids.
func NewGallery(seed Seed) (*Gallery, error) {
	g := &Gallery{
		tags:    gallery.CloneTags(seed.Tags),
		folders: gallery.CloneFolders(seed.Folders),
		files:   make([]gallery.FileInfo, 0, len(seed.Files)),
		fileDir: make(map[string]string, len(seed.Files)),
		tempIDs: map[gallery.TagID]gallery.TagID{},
		nextID:  1,
	}

	for _, t := range g.tags {
		n, ok := t.ID.Int()
		if !ok {
			return nil, fmt.Errorf("seed tag %q: id %q is not numeric", t.Name, t.ID)
		}
		g.nextID = max(g.nextID, n+1)
	}
	for _, f := range seed.Files {
		info := f.FileInfo.Clone()
		if info.Tags == nil {
			info.Tags = []gallery.TagID{}
		}
		g.files = append(g.files, info)
		g.fileDir[info.Hash] = f.Folder
	}
	return g, nil
}

// Bootstrap returns the tag list and folder set.
func (g *Gallery) Bootstrap() gallery.Bootstrap {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return gallery.Bootstrap{
		Tags:    gallery.CloneTags(g.tags),
		Folders: gallery.CloneFolders(g.folders),
	}
}

// Files returns the files directly inside folder, or every file when folder
// is nil.
func (g *Gallery) Files(folder *string) []gallery.FileInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []gallery.FileInfo{}
	for _, f := range g.files {
		if folder != nil && g.fileDir[f.Hash] != *folder {
			continue
		}
		out = append(out, f.Clone())
	}
	return out
}

// File returns one file by hash.
func (g *Gallery) File(hash string) (gallery.FileInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i := gallery.FindFile(g.files, hash)
	if i < 0 {
		return gallery.FileInfo{}, false
	}
	return g.files[i].Clone(), true
}

// Apply runs a batch atomically: either every action is applied or none is.
// It returns the follow-up actions clients need to converge.
func (g *Gallery) Apply(batch []action.Action) ([]action.Action, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	work := g.cloneLocked()
	var followUps []action.Action
	for i, a := range batch {
		var (
			more []action.Action
			err  error
		)
		switch a := a.(type) {
		case action.TagUpdate:
			more, err = work.saveTags(a.Tags)
		case action.FileTagUpdate:
			err = work.saveFileTags(a)
		case action.TagRemap:
			err = invalidf("%s is only sent by the backend", a.Kind())
		default:
			err = &action.UnknownKindError{Kind: a.Kind()}
		}
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
		}
		followUps = append(followUps, more...)
	}
	if len(work.remapped) > 0 {
		// renames go first so clients fix file references even when they
		// skip the wholesale tag list
		followUps = append([]action.Action{action.NewTagRemap(work.remapped)}, followUps...)
	}

	g.tags, g.files, g.tempIDs, g.nextID = work.tags, work.files, work.tempIDs, work.nextID
	return followUps, nil
}

func (g *Gallery) cloneLocked() *Gallery {
	temp := make(map[gallery.TagID]gallery.TagID, len(g.tempIDs))
	for k, v := range g.tempIDs {
		temp[k] = v
	}
	return &Gallery{
		tags:     gallery.CloneTags(g.tags),
		files:    gallery.CloneFiles(g.files),
		folders:  g.folders,
		fileDir:  g.fileDir,
		tempIDs:  temp,
		nextID:   g.nextID,
		remapped: map[gallery.TagID]gallery.TagID{},
	}
}

// resolve maps a tag id sent by a client to the real id of a tag in tags.
func (g *Gallery) resolve(id gallery.TagID, tags []gallery.Tag) (gallery.TagID, bool) {
	if id.IsTemporary() {
		realID, ok := g.tempIDs[id]
		if !ok {
			return "", false
		}
		g.remapped[id] = realID
		id = realID
	}
	return id, gallery.FindTag(tags, id) >= 0
}

// saveTags replaces the tag list. Temporary ids get real ids, unknown numeric
// ids are skipped (the tag was deleted meanwhile) and tags missing from the
// list are deleted together with their file associations.
func (g *Gallery) saveTags(incoming []gallery.Tag) ([]action.Action, error) {
	saved := make([]gallery.Tag, 0, len(incoming))
	parents := make([]*gallery.TagID, 0, len(incoming))

	for _, t := range incoming {
		var id gallery.TagID
		switch {
		case t.ID.IsTemporary():
			realID, ok := g.tempIDs[t.ID]
			if !ok {
				realID = gallery.IntTagID(g.nextID)
				g.nextID++
				g.tempIDs[t.ID] = realID
			}
			g.remapped[t.ID] = realID
			id = realID
		case gallery.FindTag(g.tags, t.ID) >= 0:
			id = t.ID
		default:
			continue
		}
		if slices.ContainsFunc(saved, func(s gallery.Tag) bool { return s.ID == id }) {
			return nil, invalidf("tag %s listed twice", id)
		}
		saved = append(saved, gallery.Tag{ID: id, Name: t.Name})
		parents = append(parents, t.Parent)
	}

	// parents resolve after every temporary id in the list has a real id
	for i, parent := range parents {
		if parent == nil {
			continue
		}
		realID, ok := g.resolve(*parent, saved)
		if !ok {
			return nil, invalidf("tag %q: unknown parent %s", saved[i].Name, *parent)
		}
		saved[i].Parent = &realID
	}

	for _, old := range g.tags {
		if gallery.FindTag(saved, old.ID) < 0 {
			g.untagAll(old.ID)
		}
	}
	g.tags = saved

	return []action.Action{action.NewTagUpdate(saved)}, nil
}

func (g *Gallery) untagAll(id gallery.TagID) {
	for i := range g.files {
		g.files[i].Tags = slices.DeleteFunc(g.files[i].Tags, func(t gallery.TagID) bool { return t == id })
	}
}

// saveFileTags adds associations idempotently, then removes every matching
// association.
func (g *Gallery) saveFileTags(a action.FileTagUpdate) error {
	for _, ft := range a.ToAdd {
		i, tag, err := g.fileTag(ft)
		if err != nil {
			return err
		}
		if !slices.Contains(g.files[i].Tags, tag) {
			g.files[i].Tags = append(g.files[i].Tags, tag)
		}
	}

	for _, ft := range a.ToRemove {
		i, tag, err := g.fileTag(ft)
		if err != nil {
			return err
		}
		g.files[i].Tags = slices.DeleteFunc(g.files[i].Tags, func(t gallery.TagID) bool { return t == tag })
	}
	return nil
}

func (g *Gallery) fileTag(ft gallery.FileTag) (int, gallery.TagID, error) {
	i := gallery.FindFile(g.files, ft.File)
	if i < 0 {
		return 0, "", invalidf("unknown file %q", ft.File)
	}
	tag, ok := g.resolve(ft.Tag, g.tags)
	if !ok {
		return 0, "", invalidf("unknown tag %s", ft.Tag)
	}
	return i, tag, nil
}
