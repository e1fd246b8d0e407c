package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
)

const (
	// ActivityContext is the JSON-LD context stamped on outgoing envelopes.
	ActivityContext = "https://www.w3.org/ns/activitystreams"

	// PublicAudience is the broadcast addressing target.
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

// Tag is the closed two-case tag union: a Hashtag carries a name and a
// local tag page href, a Mention carries the mentioned actor's href.
type Tag struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Href string `json:"href,omitempty"`
}

func Hashtag(domainName, name string) Tag {
	return Tag{
		Type: "Hashtag",
		Name: "#" + name,
		Href: fmt.Sprintf("https://%s/tags/%s", domainName, name),
	}
}

func Mention(href string) Tag {
	return Tag{Type: "Mention", Href: href}
}

// Note is the wire representation of a content object.
type Note struct {
	Context      any      `json:"@context,omitempty"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	AttributedTo string   `json:"attributedTo"`
	Content      string   `json:"content"`
	Published    string   `json:"published,omitempty"`
	To           []string `json:"to,omitempty"`
	CC           []string `json:"cc,omitempty"`
	Tag          []Tag    `json:"tag,omitempty"`
	InReplyTo    string   `json:"inReplyTo,omitempty"`
}

// ToNote projects a local post into its wire representation: attributed
// to the local actor, addressed to the public audience and cc'd to the
// followers collection, with tags rendered as hashtags.
func ToNote(note *domain.Note, localActor *domain.Actor, domainName string) *Note {
	tags := make([]Tag, 0, len(note.Tags))
	for _, t := range note.Tags {
		tags = append(tags, Hashtag(domainName, t))
	}

	return &Note{
		ID:           NoteURI(domainName, note.Id),
		Type:         "Note",
		AttributedTo: localActor.URI,
		Content:      note.Content,
		Published:    note.CreatedAt.UTC().Format(time.RFC3339),
		To:           []string{PublicAudience},
		CC:           []string{localActor.URI + "/followers"},
		Tag:          tags,
	}
}

// FromNote is the inverse projection for received Create activities. The
// result is logged, not persisted.
func FromNote(n *Note) (*domain.Note, error) {
	if n.ID == "" || n.AttributedTo == "" {
		return nil, fmt.Errorf("%w: note missing id or attributedTo", domain.ErrVerificationFailed)
	}

	var tags []string
	for _, t := range n.Tag {
		if t.Type == "Hashtag" && len(t.Name) > 1 {
			tags = append(tags, t.Name[1:])
		}
	}

	published := time.Now()
	if n.Published != "" {
		if ts, err := time.Parse(time.RFC3339, n.Published); err == nil {
			published = ts
		}
	}

	return &domain.Note{
		Id:        uuid.New(),
		CreatedBy: n.AttributedTo,
		Content:   n.Content,
		Tags:      tags,
		ObjectURI: n.ID,
		Local:     false,
		CreatedAt: published,
	}, nil
}

// NoteURI returns the stable identifier for a local note.
func NoteURI(domainName string, id uuid.UUID) string {
	return fmt.Sprintf("https://%s/notes/%s", domainName, id)
}

// NewActivityID mints a globally unique activity identifier on the local
// domain.
func NewActivityID(domainName string) string {
	return fmt.Sprintf("https://%s/activities/%s", domainName, uuid.New())
}

// NewCreate wraps a wire note in its Create envelope, copying the note's
// addressing onto the activity as remote servers expect.
func NewCreate(n *Note, domainName string) (*domain.Envelope, error) {
	inner := *n
	inner.Context = nil
	object, err := json.Marshal(&inner)
	if err != nil {
		return nil, err
	}

	return &domain.Envelope{
		Context:   ActivityContext,
		ID:        NewActivityID(domainName),
		Type:      domain.KindCreate,
		Actor:     n.AttributedTo,
		Object:    object,
		To:        n.To,
		CC:        n.CC,
		Published: n.Published,
	}, nil
}
