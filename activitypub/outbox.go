package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
)

// Outbox builds envelopes for local actions and hands them to the
// deliverer. Point-to-point replies (Accept) carry explicit recipients;
// everything else fans out to the follower registry.
type Outbox struct {
	db        *db.DB
	registry  *Registry
	deliverer *Deliverer
	domain    string
}

func NewOutbox(database *db.DB, registry *Registry, deliverer *Deliverer, domainName string) *Outbox {
	return &Outbox{db: database, registry: registry, deliverer: deliverer, domain: domainName}
}

// Deliver sends the activity to the given recipients. An empty recipient
// list means "all followers of the author".
func (o *Outbox) Deliver(ctx context.Context, env *domain.Envelope, from *domain.Actor, recipients []string) (*DeliveryReport, error) {
	if len(recipients) == 0 {
		addrs, err := o.registry.Addresses(from.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipients: %w", err)
		}
		recipients = addrs
	}
	return o.deliverer.Deliver(ctx, env, from, recipients), nil
}

// SendAccept replies to a Follow (or acknowledges an Undo-Follow, which
// reuses the same shape) by wrapping the original Follow in an Accept
// addressed back at the requester.
func (o *Outbox) SendAccept(ctx context.Context, owner *domain.Actor, follow *domain.Envelope, requester *domain.Actor) error {
	object, err := json.Marshal(&domain.Envelope{
		ID:     follow.ID,
		Type:   domain.KindFollow,
		Actor:  follow.Actor,
		Object: follow.Object,
	})
	if err != nil {
		return err
	}

	accept := &domain.Envelope{
		Context: ActivityContext,
		ID:      NewActivityID(o.domain),
		Type:    domain.KindAccept,
		Actor:   owner.URI,
		Object:  object,
	}

	report, err := o.Deliver(ctx, accept, owner, []string{requester.DeliveryAddress()})
	if err != nil {
		return err
	}
	if ferr := report.FirstError(); ferr != nil {
		return fmt.Errorf("failed to deliver Accept to %s: %w", requester.URI, ferr)
	}

	o.recordLocal(accept)
	return nil
}

// PublishNote turns a locally authored post into a Create activity and
// delivers one signed copy to every follower inbox. The report carries
// each recipient's independent outcome.
func (o *Outbox) PublishNote(ctx context.Context, owner *domain.Actor, note *domain.Note) (*DeliveryReport, error) {
	wire := ToNote(note, owner, o.domain)
	env, err := NewCreate(wire, o.domain)
	if err != nil {
		return nil, err
	}

	o.recordLocal(env)

	report, err := o.Deliver(ctx, env, owner, nil)
	if err != nil {
		return nil, err
	}

	log.Info("published note",
		"note", note.Id,
		"delivered", report.Delivered(),
		"failed", report.Failed())
	return report, nil
}

func (o *Outbox) recordLocal(env *domain.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	rec := &domain.ActivityRecord{
		Id:           uuid.New(),
		ActivityURI:  env.ID,
		ActivityType: string(env.Type),
		ActorURI:     env.Actor,
		ObjectURI:    env.ObjectID(),
		RawJSON:      string(raw),
		Local:        true,
		CreatedAt:    time.Now(),
	}
	if err := o.db.CreateActivity(rec); err != nil {
		log.Warn("failed to record outgoing activity", "uri", env.ID, "err", err)
	}
}
