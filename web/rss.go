package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

// handleFeed renders the local actor's posts as an RSS feed.
func (s *Server) handleFeed(c *gin.Context) {
	actor, err := s.store.ByName(s.conf.Conf.Username)
	if err != nil {
		notFoundJSON(c)
		return
	}

	notes, err := s.db.NotesByAuthor(actor.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	title := actor.DisplayName
	if title == "" {
		title = actor.Name
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s@%s", actor.Name, s.conf.Conf.SslDomain),
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s/feed", s.conf.Conf.SslDomain)},
		Description: actor.Summary,
		Author:      &feeds.Author{Name: title},
		Created:     time.Now(),
	}

	for _, note := range notes {
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       itemTitle(note.Content),
			Link:        &feeds.Link{Href: note.ObjectURI},
			Description: note.Content,
			Created:     note.CreatedAt,
			Id:          note.ObjectURI,
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
		return
	}

	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

// itemTitle trims a note down to a single feed headline.
func itemTitle(content string) string {
	const maxLen = 80
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "…"
}
