package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Note is a unit of published content. Local notes are written once and
// never mutated; remote notes pass through for logging only.
type Note struct {
	Id        uuid.UUID
	CreatedBy string
	Content   string
	Tags      []string
	ObjectURI string
	Local     bool
	CreatedAt time.Time
}

func (note *Note) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tCreatedBy: %s \n\tContent: %s \n\tCreatedAt: %s", note.Id, note.CreatedBy, note.Content, note.CreatedAt)
}
