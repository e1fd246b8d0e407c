package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/domain"
	"github.com/gin-gonic/gin"
)

// handleInbox serves both the per-actor inbox and the shared inbox. The
// transport layer authenticates the HTTP signature against the claimed
// actor's published key before the activity reaches the dispatch engine.
func (s *Server) handleInbox(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read body"})
		return
	}

	var probe struct {
		Actor string `json:"actor"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Actor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed activity"})
		return
	}

	if c.GetHeader("Signature") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "missing signature"})
		return
	}

	sender, err := s.store.Resolve(c.Request.Context(), probe.Actor)
	if err != nil {
		log.Warn("could not resolve inbound actor", "actor", probe.Actor, "err", err)
		c.JSON(statusFor(err), gin.H{"detail": "could not resolve actor"})
		return
	}

	if _, err := activitypub.VerifyRequest(c.Request, sender.PublicKeyPem); err != nil {
		log.Warn("signature verification failed", "actor", probe.Actor, "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid signature"})
		return
	}

	if err := s.inbox.Receive(c.Request.Context(), body); err != nil {
		c.JSON(statusFor(err), gin.H{"detail": err.Error()})
		return
	}

	c.Status(http.StatusAccepted)
}

// statusFor maps the error taxonomy onto HTTP statuses: caller faults are
// 4xx, upstream faults are 502, everything else is 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrVerificationFailed),
		errors.Is(err, domain.ErrDomainMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
