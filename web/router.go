package web

import (
	"fmt"
	"net/http"

	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Server holds the wired core components the HTTP adapters translate
// for. The adapters stay thin: wire JSON in, activity model out.
type Server struct {
	conf     *util.AppConfig
	db       *db.DB
	store    *activitypub.ActorStore
	registry *activitypub.Registry
	inbox    *activitypub.Inbox
	outbox   *activitypub.Outbox
}

func NewServer(conf *util.AppConfig, database *db.DB, store *activitypub.ActorStore,
	registry *activitypub.Registry, inbox *activitypub.Inbox, outbox *activitypub.Outbox) *Server {
	return &Server{
		conf:     conf,
		db:       database,
		store:    store,
		registry: registry,
		inbox:    inbox,
		outbox:   outbox,
	}
}

// Router assembles the gin engine with all federation endpoints.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter limit plus a 1MB body cap on the federation entry points
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/users/:name", s.handleActor)
	g.GET("/users/:name/followers", s.handleFollowers)
	g.GET("/users/:name/outbox", s.handleOutbox)

	g.POST("/users/:name/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleInbox)
	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, s.handleInbox)

	g.GET("/notes/:id", s.handleNote)
	g.GET("/.well-known/webfinger", s.handleWebfinger)
	g.GET("/feed", s.handleFeed)

	g.POST("/api/publish", TokenAuthMiddleware(s.conf.Conf.ApiToken), s.handlePublish)

	return g
}

// ListenAddr returns the host:port the HTTP server binds to.
func (s *Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
}

func activityJSON(c *gin.Context, code int, body []byte) {
	c.Data(code, "application/activity+json; charset=utf-8", body)
}

func notFoundJSON(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
}
