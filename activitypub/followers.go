package activitypub

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
)

// Registry maintains the follower edges for local actors. Edges reference
// actors by URI only and carry the delivery address denormalized, so
// fan-out never joins back to the actor cache.
//
// Follow and Undo-Follow are applied in arrival order; no attempt is made
// to reconcile out-of-order delivery from the remote side.
type Registry struct {
	db    *db.DB
	store *ActorStore
}

func NewRegistry(database *db.DB, store *ActorStore) *Registry {
	return &Registry{db: database, store: store}
}

// Add records that follower follows owner. The follower actor is resolved
// (and cached) first so the edge can denormalize its delivery address.
// Adding an existing edge is a no-op.
func (r *Registry) Add(ctx context.Context, owner *domain.Actor, followerURI, followURI string) error {
	follower, err := r.store.Resolve(ctx, followerURI)
	if err != nil {
		return err
	}

	edge := domain.Follower{
		Id:          uuid.New(),
		OwnerURI:    owner.URI,
		FollowerURI: follower.URI,
		InboxURI:    follower.DeliveryAddress(),
		FollowURI:   followURI,
		CreatedAt:   time.Now(),
	}

	if err := r.db.AddFollower(&edge); err != nil {
		return err
	}

	log.Info("follower added", "owner", owner.URI, "follower", follower.URI)
	return nil
}

// Remove deletes the edge if present; removing an absent edge is a no-op.
// The follower's Actor record stays cached.
func (r *Registry) Remove(ctx context.Context, owner *domain.Actor, followerURI string) error {
	if err := r.db.RemoveFollower(owner.URI, followerURI); err != nil {
		return err
	}
	log.Info("follower removed", "owner", owner.URI, "follower", followerURI)
	return nil
}

// Addresses returns the delivery addresses for an owner's followers, in
// no particular order.
func (r *Registry) Addresses(ownerURI string) ([]string, error) {
	return r.db.FollowerAddresses(ownerURI)
}

// List returns the full follower edges, used by the followers collection
// endpoint.
func (r *Registry) List(ownerURI string) ([]domain.Follower, error) {
	return r.db.FollowersByOwner(ownerURI)
}
