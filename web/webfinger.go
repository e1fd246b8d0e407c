package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

// handleWebfinger answers acct: lookups for the local actor only.
func (s *Server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	if resource == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing resource parameter"})
		return
	}

	acct := strings.TrimPrefix(resource, "acct:")
	expected := fmt.Sprintf("%s@%s", s.conf.Conf.Username, s.conf.Conf.SslDomain)
	if acct != expected {
		notFoundJSON(c)
		return
	}

	actorURI := s.conf.ActorURI()
	c.JSON(http.StatusOK, &webfingerResponse{
		Subject: "acct:" + expected,
		Links: []webfingerLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actorURI,
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: fmt.Sprintf("https://%s/@%s", s.conf.Conf.SslDomain, s.conf.Conf.Username),
			},
		},
	})
}
