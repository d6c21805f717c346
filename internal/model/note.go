package model

import "time"

// DefaultColor is the pale yellow a note gets when no color is chosen.
const DefaultColor uint32 = 0xFFFFF59D

// Palette lists the swatches offered by the note editor, in display order.
var Palette = []uint32{
	0xFFE6E6FA, // lavender
	0xFFADD8E6, // light blue
	0xFF90EE90, // light green
	0xFFFFF9C4, // cream
	0xFFFFB6C1, // pink
}

// Note is the single persisted entity.
// An ID of 0 marks a note that has not been stored yet; the database assigns
// the real ID on first insert.
type Note struct {
	ID        int64  `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	Content   string `db:"content" json:"content"`
	Color     uint32 `db:"color" json:"color"`         // ARGB
	IsPinned  bool   `db:"is_pinned" json:"is_pinned"`
	Timestamp int64  `db:"timestamp" json:"timestamp"` // epoch milliseconds
}

// NewNote returns an unsaved note with the default color, stamped with now.
func NewNote(title, content string, now time.Time) Note {
	return Note{
		Title:     title,
		Content:   content,
		Color:     DefaultColor,
		Timestamp: now.UnixMilli(),
	}
}

// IsNew reports whether the note has never been persisted.
func (n Note) IsNew() bool {
	return n.ID == 0
}

// IsBlank reports whether both title and content are empty.
func (n Note) IsBlank() bool {
	return n.Title == "" && n.Content == ""
}

// Time returns the note's timestamp as a time.Time in the local zone.
func (n Note) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}
