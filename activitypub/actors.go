package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
)

// actorMaxAge is how long a cached remote actor stays valid before the
// next resolve re-fetches it. Remote keys rotate; an expired cache entry
// must not keep authorizing signatures forever.
const actorMaxAge = 24 * time.Hour

// Person is the wire representation of an actor document.
type Person struct {
	Context           any    `json:"@context,omitempty"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox,omitempty"`
	Followers         string `json:"followers,omitempty"`
	URL               string `json:"url,omitempty"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox,omitempty"`
	} `json:"endpoints,omitempty"`
	Icon struct {
		Type      string `json:"type,omitempty"`
		MediaType string `json:"mediaType,omitempty"`
		URL       string `json:"url,omitempty"`
	} `json:"icon,omitempty"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// ToActor converts a fetched actor document into a cached remote record.
func (p *Person) ToActor() *domain.Actor {
	return &domain.Actor{
		Name:            p.PreferredUsername,
		URI:             p.ID,
		Inbox:           p.Inbox,
		SharedInbox:     p.Endpoints.SharedInbox,
		PublicKeyPem:    p.PublicKey.PublicKeyPem,
		DisplayName:     p.Name,
		Summary:         p.Summary,
		IconURL:         p.Icon.URL,
		Local:           false,
		LastRefreshedAt: time.Now(),
	}
}

// Fetcher dereferences remote identifiers. Implemented over plain HTTP in
// production, faked in tests.
type Fetcher interface {
	FetchActor(ctx context.Context, uri string) (*Person, error)
	FetchObject(ctx context.Context, uri string) ([]byte, error)
}

// HTTPFetcher fetches remote representations with the activity+json
// accept header.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 10 * time.Second},
		UserAgent: "fedipage/1.0 ActivityPub",
	}
}

func (f *HTTPFetcher) FetchActor(ctx context.Context, uri string) (*Person, error) {
	body, err := f.FetchObject(ctx, uri)
	if err != nil {
		return nil, err
	}

	var person Person
	if err := json.Unmarshal(body, &person); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}
	return &person, nil
}

func (f *HTTPFetcher) FetchObject(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, uri)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: fetch of %s returned status %d", domain.ErrUpstreamUnavailable, uri, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

// ActorStore resolves actor references to full records, caching remote
// actors and refreshing them when stale.
type ActorStore struct {
	db       *db.DB
	fetcher  Fetcher
	localURI string
}

func NewActorStore(database *db.DB, fetcher Fetcher, localURI string) *ActorStore {
	return &ActorStore{db: database, fetcher: fetcher, localURI: localURI}
}

// Resolve returns the actor record for a stable identifier. The local
// actor is always served from the database, never fetched. Remote actors
// come from cache when fresh, otherwise from a remote fetch that is
// validated against the requested identifier's domain before caching.
func (s *ActorStore) Resolve(ctx context.Context, uri string) (*domain.Actor, error) {
	if uri == s.localURI {
		return s.db.ActorByURI(uri)
	}

	cached, err := s.db.ActorByURI(uri)
	if err == nil && time.Since(cached.LastRefreshedAt) < actorMaxAge {
		return cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	person, err := s.fetcher.FetchActor(ctx, uri)
	if err != nil {
		return nil, err
	}

	if person.ID == "" || person.Inbox == "" || person.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("%w: actor %s missing required fields", domain.ErrVerificationFailed, uri)
	}

	// Anti-spoofing: the fetched document must declare an identifier on
	// the same domain we asked for, or it could impersonate anyone.
	if !domain.SameHost(person.ID, uri) {
		log.Warn("rejecting actor with mismatched domain", "requested", uri, "declared", person.ID)
		return nil, fmt.Errorf("%w: requested %s, declared %s", domain.ErrDomainMismatch, uri, person.ID)
	}

	actor := person.ToActor()
	if err := s.db.UpsertActor(actor); err != nil {
		return nil, fmt.Errorf("failed to cache actor %s: %w", uri, err)
	}

	log.Info("cached remote actor", "uri", actor.URI, "inbox", actor.Inbox)
	return actor, nil
}

// Save upserts an actor record, keyed by identifier. Used to bootstrap
// the local actor and to refresh cached remote ones.
func (s *ActorStore) Save(actor *domain.Actor) error {
	return s.db.UpsertActor(actor)
}

// ByName looks up a local actor by preferred username; the profile and
// webfinger endpoints resolve through here.
func (s *ActorStore) ByName(name string) (*domain.Actor, error) {
	return s.db.ActorByName(name)
}
