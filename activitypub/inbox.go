package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
)

// Inbox is the inbound dispatch engine. Transport-level signature
// verification happens in the HTTP adapter before an activity reaches
// Receive; this engine only checks protocol-level semantic validity, then
// routes each activity to exactly one handler.
//
// A failure is local to the activity that caused it: nothing is retried
// and no other in-flight activity is affected.
type Inbox struct {
	store    *ActorStore
	registry *Registry
	outbox   *Outbox
	db       *db.DB
	localURI string
}

func NewInbox(store *ActorStore, registry *Registry, outbox *Outbox, database *db.DB, localURI string) *Inbox {
	return &Inbox{store: store, registry: registry, outbox: outbox, db: database, localURI: localURI}
}

// Receive verifies and applies one raw activity.
func (in *Inbox) Receive(ctx context.Context, raw []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: malformed activity: %v", domain.ErrVerificationFailed, err)
	}

	if !env.Type.Known() {
		log.Info("ignoring unsupported activity kind", "type", env.Type, "actor", env.Actor)
		return nil
	}

	log.Info("received activity", "type", env.Type, "id", env.ID, "actor", env.Actor)

	if err := in.verify(&env); err != nil {
		if errors.Is(err, domain.ErrDomainMismatch) {
			log.Warn("rejected spoofed activity", "id", env.ID, "actor", env.Actor, "err", err)
		}
		return err
	}

	return in.dispatch(ctx, &env, raw)
}

// verify runs the kind-specific semantic checks. No state is touched.
func (in *Inbox) verify(env *domain.Envelope) error {
	if env.ID == "" || env.Actor == "" {
		return fmt.Errorf("%w: activity missing id or actor", domain.ErrVerificationFailed)
	}

	// The author mints activity ids on its own domain; an id on a
	// foreign domain, or one with no resolvable host at all, is an
	// impersonation attempt.
	if !domain.SameHost(env.ID, env.Actor) {
		return fmt.Errorf("%w: activity %s claims actor %s", domain.ErrDomainMismatch, env.ID, env.Actor)
	}

	switch env.Type {
	case domain.KindFollow:
		if env.ObjectID() != in.localURI {
			return fmt.Errorf("%w: follow target %s is not the local actor", domain.ErrVerificationFailed, env.ObjectID())
		}

	case domain.KindUndo:
		inner, err := env.ObjectEnvelope()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
		}
		if inner.Type == domain.KindFollow && inner.Actor != env.Actor {
			return fmt.Errorf("%w: %s cannot undo a follow by %s", domain.ErrVerificationFailed, env.Actor, inner.Actor)
		}

	case domain.KindCreate:
		note, err := decodeNoteObject(env)
		if err != nil {
			return err
		}
		// Same anti-spoofing rule as for actors, applied to content:
		// the object id must live on its declared author's domain.
		if !domain.SameHost(note.ID, note.AttributedTo) {
			return fmt.Errorf("%w: note %s attributed to %s", domain.ErrDomainMismatch, note.ID, note.AttributedTo)
		}
		if note.AttributedTo != env.Actor {
			return fmt.Errorf("%w: note %s attributed to %s but delivered by %s", domain.ErrDomainMismatch, note.ID, note.AttributedTo, env.Actor)
		}
	}

	return nil
}

// dispatch routes a verified activity to its handler. The kind set is
// closed: adding a kind extends domain.Kind and this switch.
func (in *Inbox) dispatch(ctx context.Context, env *domain.Envelope, raw []byte) error {
	switch env.Type {
	case domain.KindFollow:
		return in.handleFollow(ctx, env, raw)
	case domain.KindUndo:
		return in.handleUndo(ctx, env, raw)
	case domain.KindAccept:
		return in.handleAccept(env)
	case domain.KindCreate:
		return in.handleCreate(ctx, env, raw)
	default:
		// Unreachable: Receive drops unknown kinds before dispatch.
		return fmt.Errorf("%w: unhandled activity kind %s", domain.ErrVerificationFailed, env.Type)
	}
}

// handleFollow adds the requester to the follower registry and replies
// with an Accept. A duplicate Follow leaves a single edge in place; the
// Accept is sent again, which remote servers tolerate.
func (in *Inbox) handleFollow(ctx context.Context, env *domain.Envelope, raw []byte) error {
	owner, err := in.db.ActorByURI(env.ObjectID())
	if err != nil {
		return fmt.Errorf("follow target %s: %w", env.ObjectID(), err)
	}

	if err := in.registry.Add(ctx, owner, env.Actor, env.ID); err != nil {
		return fmt.Errorf("failed to add follower %s: %w", env.Actor, err)
	}

	requester, err := in.store.Resolve(ctx, env.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve follower %s: %w", env.Actor, err)
	}

	if err := in.outbox.SendAccept(ctx, owner, env, requester); err != nil {
		return err
	}

	in.record(env, raw)
	return nil
}

// handleUndo removes the follower named by the embedded Follow and sends
// the same Accept shape back as an acknowledgement.
func (in *Inbox) handleUndo(ctx context.Context, env *domain.Envelope, raw []byte) error {
	inner, err := env.ObjectEnvelope()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}

	if inner.Type != domain.KindFollow {
		log.Info("ignoring undo of unsupported kind", "type", inner.Type, "actor", env.Actor)
		return nil
	}

	owner, err := in.db.ActorByURI(inner.ObjectID())
	if err != nil {
		return fmt.Errorf("undo-follow target %s: %w", inner.ObjectID(), err)
	}

	if err := in.registry.Remove(ctx, owner, env.Actor); err != nil {
		return fmt.Errorf("failed to remove follower %s: %w", env.Actor, err)
	}

	requester, err := in.store.Resolve(ctx, env.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve unfollower %s: %w", env.Actor, err)
	}

	if err := in.outbox.SendAccept(ctx, owner, inner, requester); err != nil {
		return err
	}

	in.record(env, raw)
	return nil
}

// handleAccept is inert: this endpoint never sends outgoing Follows, so
// an Accept confirms nothing. It is logged and recorded.
func (in *Inbox) handleAccept(env *domain.Envelope) error {
	log.Info("received accept", "id", env.ID, "actor", env.Actor, "object", env.ObjectID())
	return nil
}

// handleCreate logs a received post. Persisting arbitrary remote content
// is a collaborator concern; only the activity id is recorded so a
// redelivered Create is skipped.
func (in *Inbox) handleCreate(ctx context.Context, env *domain.Envelope, raw []byte) error {
	if _, err := in.db.ActivityByURI(env.ID); err == nil {
		log.Info("skipping already processed activity", "id", env.ID)
		return nil
	}

	wireNote, err := decodeNoteObject(env)
	if err != nil {
		return err
	}

	note, err := FromNote(wireNote)
	if err != nil {
		return err
	}

	log.Info("received post", "from", env.Actor, "object", note.ObjectURI)

	in.record(env, raw)
	return nil
}

func decodeNoteObject(env *domain.Envelope) (*Note, error) {
	var note Note
	if err := json.Unmarshal(env.Object, &note); err != nil {
		return nil, fmt.Errorf("%w: create object is not a note: %v", domain.ErrVerificationFailed, err)
	}
	return &note, nil
}

func (in *Inbox) record(env *domain.Envelope, raw []byte) {
	rec := &domain.ActivityRecord{
		Id:           uuid.New(),
		ActivityURI:  env.ID,
		ActivityType: string(env.Type),
		ActorURI:     env.Actor,
		ObjectURI:    env.ObjectID(),
		RawJSON:      string(raw),
		Local:        false,
		CreatedAt:    time.Now(),
	}
	if err := in.db.CreateActivity(rec); err != nil {
		log.Warn("failed to record activity", "uri", env.ID, "err", err)
	}
}
