package domain

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Actor is a participant, local or remote, identified by a stable URI.
// Remote actors are cached copies refreshed when stale. PrivateKeyPem is
// set if and only if the actor is local.
type Actor struct {
	Name            string    `json:"name"`
	URI             string    `json:"uri"`
	Inbox           string    `json:"inbox"`
	SharedInbox     string    `json:"sharedInbox,omitempty"`
	PublicKeyPem    string    `json:"publicKeyPem"`
	PrivateKeyPem   string    `json:"privateKeyPem,omitempty"`
	DisplayName     string    `json:"displayName,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	IconURL         string    `json:"iconUrl,omitempty"`
	Local           bool      `json:"local"`
	LastRefreshedAt time.Time `json:"lastRefreshedAt"`
}

// DeliveryAddress returns the inbox to deliver to, preferring the shared
// inbox when the remote server declares one.
func (a *Actor) DeliveryAddress() string {
	if a.SharedInbox != "" {
		return a.SharedInbox
	}
	return a.Inbox
}

func (a *Actor) Host() string {
	return HostOf(a.URI)
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tName: %s \n\tURI: %s \n\tInbox: %s \n\tLocal: %t", a.Name, a.URI, a.Inbox, a.Local)
}

// HostOf extracts the host part of a URI, or "" when it doesn't parse.
func HostOf(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// SameHost reports whether two identifiers live on the same host. An
// identifier without a resolvable host never matches anything, itself
// included.
func SameHost(a, b string) bool {
	ha := HostOf(a)
	return ha != "" && ha == HostOf(b)
}

// Follower is a directed edge: a remote actor following a local one. Both
// ends are referenced by URI only, never by pointer, and the delivery
// address is denormalized so fan-out needs no join.
type Follower struct {
	Id          uuid.UUID
	OwnerURI    string
	FollowerURI string
	InboxURI    string
	FollowURI   string
	CreatedAt   time.Time
}
