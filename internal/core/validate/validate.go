// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/vgloss/internal/core/gallery"
)

// TagName validates a tag name is non-empty after trimming whitespace.
func TagName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// TagNameField returns a criterio validator for tag names.
func TagNameField(field, name string) error {
	return criterio.Run(field, name, TagName)
}

// FileHash validates a file hash can be used as a single URL path segment.
func FileHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("hash is required")
	}
	if strings.ContainsAny(hash, "/?# \t\n") {
		return fmt.Errorf("invalid hash %q", hash)
	}
	return nil
}

// FileHashField returns a criterio validator for file hashes.
func FileHashField(field, hash string) error {
	return criterio.Run(field, hash, FileHash)
}

// Tags validates a full tag list as sent with a TagUpdate: every tag needs
// an id and a name, and ids are unique.
func Tags(tags []gallery.Tag) error {
	var errs criterio.FieldErrorsBuilder
	seen := make(map[gallery.TagID]bool, len(tags))
	for i, t := range tags {
		field := fmt.Sprintf("tags[%d]", i)
		if t.ID == "" {
			errs = errs.Append(field+".id", fmt.Errorf("id is required"))
		} else if seen[t.ID] {
			errs = errs.Append(field+".id", fmt.Errorf("duplicate id %q", t.ID))
		}
		seen[t.ID] = true
		if err := TagName(t.Name); err != nil {
			errs = errs.Append(field+".name", err)
		}
	}
	return errs.ToError()
}
