package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleNote serves a local post as its wire representation.
func (s *Server) handleNote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFoundJSON(c)
		return
	}

	note, err := s.db.NoteById(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			notFoundJSON(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	actor, err := s.store.ByName(s.conf.Conf.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	wire := activitypub.ToNote(note, actor, s.conf.Conf.SslDomain)
	wire.Context = activitypub.ActivityContext

	body, err := json.Marshal(wire)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}
	activityJSON(c, http.StatusOK, body)
}
