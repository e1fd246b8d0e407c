package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of activity kinds this endpoint understands.
// Adding a kind means extending this set and the dispatch switch.
type Kind string

const (
	KindFollow Kind = "Follow"
	KindAccept Kind = "Accept"
	KindUndo   Kind = "Undo"
	KindCreate Kind = "Create"
)

func (k Kind) Known() bool {
	switch k {
	case KindFollow, KindAccept, KindUndo, KindCreate:
		return true
	}
	return false
}

// Envelope is the wire unit exchanged between servers. Object stays raw
// because its shape depends on the kind: a URI string for Follow, an
// embedded Follow for Undo, a Note for Create.
type Envelope struct {
	Context   any             `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      Kind            `json:"type"`
	Actor     string          `json:"actor"`
	Object    json.RawMessage `json:"object,omitempty"`
	To        []string        `json:"to,omitempty"`
	CC        []string        `json:"cc,omitempty"`
	Published string          `json:"published,omitempty"`
}

// ObjectID returns the identifier of the target object, whether the
// object field is a bare URI string or an embedded object with an id.
func (e *Envelope) ObjectID() string {
	if len(e.Object) == 0 {
		return ""
	}

	var uri string
	if err := json.Unmarshal(e.Object, &uri); err == nil {
		return uri
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Object, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ObjectEnvelope decodes an embedded activity carried in the object field
// (the original Follow inside an Undo).
func (e *Envelope) ObjectEnvelope() (*Envelope, error) {
	if len(e.Object) == 0 {
		return nil, fmt.Errorf("envelope %s has no object", e.ID)
	}
	var inner Envelope
	if err := json.Unmarshal(e.Object, &inner); err != nil {
		return nil, fmt.Errorf("failed to decode embedded object of %s: %w", e.ID, err)
	}
	return &inner, nil
}

// ActivityRecord is the persisted log entry for a processed activity,
// keyed by its wire identifier for redelivery skips.
type ActivityRecord struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Local        bool
	CreatedAt    time.Time
}
