package notes

import (
	"strings"

	"noteease/internal/model"
)

// Filter returns the notes visible for query. A blank query shows everything;
// otherwise a note is kept when query occurs, ignoring case, in its title or
// its content. Order is preserved.
func Filter(all []model.Note, query string) []model.Note {
	if strings.TrimSpace(query) == "" {
		return all
	}

	needle := strings.ToLower(query)
	visible := make([]model.Note, 0, len(all))
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.Title), needle) ||
			strings.Contains(strings.ToLower(n.Content), needle) {
			visible = append(visible, n)
		}
	}
	return visible
}
