package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/domain"
	"github.com/gin-gonic/gin"
)

// personDoc renders the local actor as its public actor document. The
// private key never leaves the database.
func (s *Server) personDoc(actor *domain.Actor) *activitypub.Person {
	domainName := s.conf.Conf.SslDomain
	p := &activitypub.Person{
		Context:           activitypub.ActivityContext,
		ID:                actor.URI,
		Type:              "Person",
		PreferredUsername: actor.Name,
		Name:              actor.DisplayName,
		Summary:           actor.Summary,
		Inbox:             actor.URI + "/inbox",
		Outbox:            actor.URI + "/outbox",
		Followers:         actor.URI + "/followers",
		URL:               "https://" + domainName + "/@" + actor.Name,
	}
	p.Endpoints.SharedInbox = "https://" + domainName + "/inbox"
	if actor.IconURL != "" {
		p.Icon.Type = "Image"
		p.Icon.MediaType = "image/png"
		p.Icon.URL = actor.IconURL
	}
	p.PublicKey.ID = actor.URI + "#main-key"
	p.PublicKey.Owner = actor.URI
	p.PublicKey.PublicKeyPem = actor.PublicKeyPem
	return p
}

func (s *Server) handleActor(c *gin.Context) {
	actor, err := s.store.ByName(c.Param("name"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			notFoundJSON(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	body, err := json.Marshal(s.personDoc(actor))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	activityJSON(c, http.StatusOK, body)
}

// orderedCollection is the minimal collection shape remote servers read
// for follower counts.
type orderedCollection struct {
	Context      any      `json:"@context"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []string `json:"orderedItems"`
}

func (s *Server) handleFollowers(c *gin.Context) {
	actor, err := s.store.ByName(c.Param("name"))
	if err != nil {
		notFoundJSON(c)
		return
	}

	edges, err := s.registry.List(actor.URI)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	items := make([]string, 0, len(edges))
	for _, e := range edges {
		items = append(items, e.FollowerURI)
	}

	body, err := json.Marshal(&orderedCollection{
		Context:      activitypub.ActivityContext,
		ID:           actor.URI + "/followers",
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	activityJSON(c, http.StatusOK, body)
}

func (s *Server) handleOutbox(c *gin.Context) {
	actor, err := s.store.ByName(c.Param("name"))
	if err != nil {
		notFoundJSON(c)
		return
	}

	notes, err := s.db.NotesByAuthor(actor.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	items := make([]string, 0, len(notes))
	for _, n := range notes {
		items = append(items, n.ObjectURI)
	}

	body, err := json.Marshal(&orderedCollection{
		Context:      activitypub.ActivityContext,
		ID:           actor.URI + "/outbox",
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	activityJSON(c, http.StatusOK, body)
}
