package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hay-kot/vgloss/internal/core/gallery"
	"github.com/hay-kot/vgloss/internal/core/styles"
	"github.com/hay-kot/vgloss/internal/vgloss"
)

// printTags writes tags as a table. Temporary ids are highlighted: they mean
// the backend has not assigned a real id yet.
func printTags(w io.Writer, tags []gallery.Tag) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tPARENT")
	for _, t := range tags {
		parent := "-"
		if t.Parent != nil {
			parent = tagName(tags, *t.Parent)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", idLabel(t.ID), t.Name, parent)
	}
	_ = tw.Flush()
}

func idLabel(id gallery.TagID) string {
	if id.IsTemporary() {
		return styles.TempIDStyle.Render(id.String())
	}
	return id.String()
}

func tagName(tags []gallery.Tag, id gallery.TagID) string {
	if i := gallery.FindTag(tags, id); i >= 0 {
		return tags[i].Name
	}
	return id.String()
}

// resolveTag accepts a tag id or a unique tag name.
func resolveTag(tags []gallery.Tag, ref string) (gallery.TagID, error) {
	if i := gallery.FindTag(tags, gallery.TagID(ref)); i >= 0 {
		return tags[i].ID, nil
	}

	var found []gallery.TagID
	for _, t := range tags {
		if strings.EqualFold(t.Name, ref) {
			found = append(found, t.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("unknown tag %q", ref)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("tag name %q is ambiguous, use one of the ids %v", ref, found)
	}
}

// fileTagNames returns the names of the tags on f.
func fileTagNames(tags []gallery.Tag, f gallery.FileInfo) []string {
	names := make([]string, 0, len(f.Tags))
	for _, id := range f.Tags {
		names = append(names, tagName(tags, id))
	}
	return names
}

// deliveryError reports a failed flush. Rejected batches are gone; retryable
// ones stay queued and, with the journal enabled, survive for `vgloss sync`.
func deliveryError(app *vgloss.App, s *vgloss.Session, err error) error {
	st := s.Engine.Status()
	queued := st.Pending + st.InFlight
	switch {
	case queued == 0:
		return fmt.Errorf("rejected by the backend: %w", err)
	case app.Config.Sync.Journal:
		return fmt.Errorf("not delivered, %d action(s) kept for 'vgloss sync': %w", queued, err)
	default:
		return fmt.Errorf("not delivered and journal disabled: %w", err)
	}
}
