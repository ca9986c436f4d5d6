package gallery

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ListFolders returns the names of the immediate children of path. An empty
// path lists the top-level folders. Results keep the order of folders.
func ListFolders(folders []string, path string) []string {
	path = strings.Trim(path, "/")

	var prefix string
	depth := 0
	if path != "" {
		prefix = path + "/"
		depth = strings.Count(path, "/") + 1
	}

	var found []string
	for _, candidate := range folders {
		if !strings.HasPrefix(candidate, prefix) {
			continue
		}
		parts := strings.Split(candidate, "/")
		if len(parts) != depth+1 {
			continue
		}
		name := parts[len(parts)-1]
		if !slices.Contains(found, name) {
			found = append(found, name)
		}
	}
	return found
}

// MatchFolders returns every folder path matching the doublestar pattern.
func MatchFolders(folders []string, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}

	var matched []string
	for _, f := range folders {
		if doublestar.MatchUnvalidated(pattern, f) {
			matched = append(matched, f)
		}
	}
	return matched, nil
}
