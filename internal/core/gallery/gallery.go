// Package gallery defines the entities shared between the client-side state
// store and the backend: tags, files, folder paths and the bootstrap payload
// used to seed a fresh client.
package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/vgloss/pkg/randid"
)

// TempIDPrefix marks tag ids minted on the client before the backend has
// assigned a real one.
const TempIDPrefix = "tmp-"

// TagID identifies a tag. Persisted tags carry an integer id which is encoded
// as a JSON number; client-minted temporary ids are encoded as JSON strings.
type TagID string

// NewTempTagID returns a fresh temporary tag id.
func NewTempTagID() TagID {
	return TagID(TempIDPrefix + randid.Generate(8))
}

// IntTagID returns the TagID for a persisted integer id.
func IntTagID(n int64) TagID {
	return TagID(strconv.FormatInt(n, 10))
}

// Int returns the integer value of a persisted id.
func (id TagID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// IsTemporary reports whether the id has not been assigned by the backend yet.
func (id TagID) IsTemporary() bool {
	_, ok := id.Int()
	return id != "" && !ok
}

func (id TagID) String() string { return string(id) }

func (id TagID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return strconv.AppendInt(nil, n, 10), nil
	}
	return json.Marshal(string(id))
}

func (id *TagID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TagID(s)
		return nil
	default:
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("tag id %s: %w", data, err)
		}
		*id = IntTagID(n)
		return nil
	}
}

// Tag is a user-defined label. Tags are identified by ID.
type Tag struct {
	ID     TagID  `json:"id"`
	Name   string `json:"name"`
	Parent *TagID `json:"parent"`
}

// Clone returns a copy of the tag that shares no memory with t.
func (t Tag) Clone() Tag {
	if t.Parent != nil {
		p := *t.Parent
		t.Parent = &p
	}
	return t
}

// FileInfo is the client view of a file. Files are identified by content hash.
type FileInfo struct {
	Hash      string     `json:"hash"`
	Name      string     `json:"name"`
	IsImage   bool       `json:"is_image"`
	Timestamp *time.Time `json:"timestamp"`
	Tags      []TagID    `json:"tags"`
}

// Clone returns a deep copy of the file.
func (f FileInfo) Clone() FileInfo {
	if f.Timestamp != nil {
		ts := *f.Timestamp
		f.Timestamp = &ts
	}
	f.Tags = slices.Clone(f.Tags)
	return f
}

// FileTag associates a file hash with a tag.
type FileTag struct {
	File string `json:"file"`
	Tag  TagID  `json:"tag"`
}

func (ft FileTag) String() string {
	return ft.File + ":" + ft.Tag.String()
}

// ParseFileTag parses the "hash:tag" form produced by FileTag.String.
func ParseFileTag(s string) (FileTag, error) {
	hash, tag, ok := strings.Cut(s, ":")
	if !ok || hash == "" || tag == "" {
		return FileTag{}, fmt.Errorf("invalid file tag %q: expected hash:tag", s)
	}
	return FileTag{File: hash, Tag: TagID(tag)}, nil
}

// Bootstrap is the initial state handed to a fresh client, either embedded in
// the page or fetched once from the backend.
type Bootstrap struct {
	Tags    []Tag      `json:"tags"`
	Folders []string   `json:"folders"`
	Files   []FileInfo `json:"files,omitempty"`
}

// CloneTags deep copies a tag list. A nil input yields an empty list.
func CloneTags(tags []Tag) []Tag {
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = t.Clone()
	}
	return out
}

// CloneFiles deep copies a file list. A nil input yields an empty list.
func CloneFiles(files []FileInfo) []FileInfo {
	out := make([]FileInfo, len(files))
	for i, f := range files {
		out[i] = f.Clone()
	}
	return out
}

// CloneFolders copies a folder list. A nil input yields an empty list.
func CloneFolders(folders []string) []string {
	out := make([]string, len(folders))
	copy(out, folders)
	return out
}

// FindTag returns the index of the tag with the given id, or -1.
func FindTag(tags []Tag, id TagID) int {
	return slices.IndexFunc(tags, func(t Tag) bool { return t.ID == id })
}

// FindFile returns the index of the first file with the given hash, or -1.
func FindFile(files []FileInfo, hash string) int {
	return slices.IndexFunc(files, func(f FileInfo) bool { return f.Hash == hash })
}
