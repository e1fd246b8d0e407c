package web

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/flakm/fedipage/util"
	"github.com/gin-gonic/gin"
)

const (
	testDomain   = "local.example"
	testUsername = "alice"
	testToken    = "test-token"
	testLocalURI = "https://local.example/users/alice"
)

type testEnv struct {
	server   *Server
	router   *gin.Engine
	database *db.DB
}

// fetchlessFetcher fails every remote lookup; the HTTP adapter tests never
// reach out to other servers.
type fetchlessFetcher struct{}

func (fetchlessFetcher) FetchActor(ctx context.Context, uri string) (*activitypub.Person, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, uri)
}

func (fetchlessFetcher) FetchObject(ctx context.Context, uri string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, uri)
}

func testKeyPair(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conf := &util.AppConfig{}
	conf.Conf.SslDomain = testDomain
	conf.Conf.Username = testUsername
	conf.Conf.ApiToken = testToken
	conf.Conf.FanoutWorkers = 2

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	privPEM, pubPEM := testKeyPair(t)
	local := &domain.Actor{
		Name:            testUsername,
		URI:             testLocalURI,
		Inbox:           testLocalURI + "/inbox",
		SharedInbox:     "https://" + testDomain + "/inbox",
		PublicKeyPem:    pubPEM,
		PrivateKeyPem:   privPEM,
		DisplayName:     "Alice",
		Local:           true,
		LastRefreshedAt: time.Now(),
	}
	if err := database.UpsertActor(local); err != nil {
		t.Fatalf("failed to save local actor: %v", err)
	}

	store := activitypub.NewActorStore(database, fetchlessFetcher{}, testLocalURI)
	registry := activitypub.NewRegistry(database, store)
	deliverer := activitypub.NewDeliverer(conf.Conf.FanoutWorkers)
	outbox := activitypub.NewOutbox(database, registry, deliverer, testDomain)
	inbox := activitypub.NewInbox(store, registry, outbox, database, testLocalURI)

	server := NewServer(conf, database, store, registry, inbox, outbox)
	return &testEnv{server: server, router: server.Router(), database: database}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestWebfinger(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/.well-known/webfinger?resource=acct:alice@local.example", nil)
	w := env.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Subject string `json:"subject"`
		Links   []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Subject != "acct:alice@local.example" {
		t.Errorf("subject = %q", resp.Subject)
	}

	found := false
	for _, l := range resp.Links {
		if l.Rel == "self" && l.Href == testLocalURI {
			found = true
		}
	}
	if !found {
		t.Error("webfinger response has no self link to the actor")
	}
}

func TestWebfingerUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet,
		"/.well-known/webfinger?resource=acct:ghost@local.example", nil)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/.well-known/webfinger", nil)
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("status without resource = %d, want 400", w.Code)
	}
}

func TestActorDocument(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/users/alice", nil)
	w := env.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/activity+json") {
		t.Errorf("content type = %q", ct)
	}

	var person activitypub.Person
	if err := json.Unmarshal(w.Body.Bytes(), &person); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if person.ID != testLocalURI || person.Type != "Person" {
		t.Errorf("unexpected actor document: id=%q type=%q", person.ID, person.Type)
	}
	if person.PublicKey.PublicKeyPem == "" {
		t.Error("actor document has no public key")
	}
	if person.Endpoints.SharedInbox != "https://local.example/inbox" {
		t.Errorf("shared inbox = %q", person.Endpoints.SharedInbox)
	}

	// The private key must never appear in the public document.
	if strings.Contains(w.Body.String(), "PRIVATE KEY") {
		t.Error("actor document leaks the private key")
	}
}

func TestActorDocumentUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/users/ghost", nil)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestInboxRejectsUnsigned(t *testing.T) {
	env := newTestEnv(t)

	body := fmt.Sprintf(`{"id":"https://remote.example/activities/1","type":"Follow","actor":"https://remote.example/users/bob","object":%q}`, testLocalURI)
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")

	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for unsigned request", w.Code)
	}
}

func TestInboxRejectsMalformed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/users/alice/inbox", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/activity+json")

	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", w.Code)
	}
}

func TestFollowersCollection(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/users/alice/followers", nil)
	w := env.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var coll struct {
		Type       string `json:"type"`
		TotalItems int    `json:"totalItems"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &coll); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if coll.Type != "OrderedCollection" || coll.TotalItems != 0 {
		t.Errorf("collection = %+v", coll)
	}
}

func TestNoteNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/notes/8f1f7e5a-7b0f-4f6e-9a3a-000000000000", nil)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes/not-a-uuid", nil)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for bad id", w.Code)
	}
}

func TestPublishRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 with wrong token", w.Code)
	}
}

func TestPublishNote(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/publish",
		strings.NewReader(`{"content":"hello #fediverse"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)

	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID        string `json:"id"`
		URI       string `json:"uri"`
		Delivered int    `json:"delivered"`
		Failed    int    `json:"failed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !strings.HasPrefix(resp.URI, "https://local.example/notes/") {
		t.Errorf("uri = %q", resp.URI)
	}

	notes, err := env.database.NotesByAuthor(testUsername)
	if err != nil {
		t.Fatalf("NotesByAuthor failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}
	if len(notes[0].Tags) != 1 || notes[0].Tags[0] != "fediverse" {
		t.Errorf("tags = %v, want hashtag extracted from content", notes[0].Tags)
	}

	// The note is now publicly dereferenceable.
	getReq := httptest.NewRequest(http.MethodGet, "/notes/"+resp.ID, nil)
	if got := env.do(getReq); got.Code != http.StatusOK {
		t.Errorf("GET note status = %d, want 200", got.Code)
	}
}

func TestPublishRejectsEmptyContent(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(`{"content":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)

	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestFeed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/publish", strings.NewReader(`{"content":"feed me"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	if w := env.do(req); w.Code != http.StatusCreated {
		t.Fatalf("publish failed: %d", w.Code)
	}

	feedReq := httptest.NewRequest(http.MethodGet, "/feed", nil)
	w := env.do(feedReq)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/rss+xml") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "feed me") {
		t.Error("feed does not contain the published note")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrVerificationFailed, http.StatusBadRequest},
		{domain.ErrDomainMismatch, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUpstreamUnavailable, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", domain.ErrDomainMismatch), http.StatusBadRequest},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
