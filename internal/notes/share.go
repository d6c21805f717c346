package notes

import (
	"context"
	"strings"

	"noteease/internal/model"
)

// DefaultDocsURL is where CopyToDocs sends the payload when none is configured.
const DefaultDocsURL = "https://docs.google.com/document/u/0/"

// Sharer hands text to the host. The store only builds payloads; transport
// belongs to the implementation.
type Sharer interface {
	// ShareText offers a plain-text payload to the host's share mechanism.
	ShareText(ctx context.Context, payload string) error

	// OpenLink opens url with the host's link handler, attaching payload.
	OpenLink(ctx context.Context, url, payload string) error
}

// FormatShareText renders notes as "title\ncontent" blocks separated by a
// blank line.
func FormatShareText(notes []model.Note) string {
	blocks := make([]string, len(notes))
	for i, n := range notes {
		blocks[i] = n.Title + "\n" + n.Content
	}
	return strings.Join(blocks, "\n\n")
}
