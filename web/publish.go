package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/domain"
	"github.com/flakm/fedipage/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type publishRequest struct {
	Content string   `json:"content" binding:"required"`
	Tags    []string `json:"tags"`
}

// handlePublish accepts a locally authored post, persists it and fans it
// out to every follower. Protected by the bearer token middleware.
func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "content is required"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "content is required"})
		return
	}

	actor, err := s.store.ByName(s.conf.Conf.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "local actor not provisioned"})
		return
	}

	tags := req.Tags
	if len(tags) == 0 {
		tags = util.ExtractHashtags(req.Content)
	}

	note := &domain.Note{
		Id:        uuid.New(),
		CreatedBy: actor.Name,
		Content:   req.Content,
		Tags:      tags,
		Local:     true,
		CreatedAt: time.Now(),
	}
	note.ObjectURI = activitypub.NoteURI(s.conf.Conf.SslDomain, note.Id)

	if err := s.db.CreateNote(note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not save note"})
		return
	}

	report, err := s.outbox.PublishNote(c.Request.Context(), actor, note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not deliver note"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        note.Id.String(),
		"uri":       note.ObjectURI,
		"delivered": report.Delivered(),
		"failed":    report.Failed(),
	})
}
