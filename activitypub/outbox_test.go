package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flakm/fedipage/domain"
	"github.com/google/uuid"
)

// With no explicit recipients, publishing resolves the follower registry
// and delivers exactly one signed copy per registered inbox.
func TestPublishNoteFansOutToFollowers(t *testing.T) {
	var posts atomic.Int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env domain.Envelope
		if err := json.Unmarshal(body, &env); err != nil || env.Type != domain.KindCreate {
			t.Errorf("remote received %q, want a Create activity", body)
		}
		posts.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer remote.Close()

	database := openTestDB(t)
	local := localTestActor(t, database)

	const followers = 3
	for i := 0; i < followers; i++ {
		edge := &domain.Follower{
			Id:          uuid.New(),
			OwnerURI:    local.URI,
			FollowerURI: fmt.Sprintf("https://remote.example/users/f%d", i),
			InboxURI:    fmt.Sprintf("%s/users/f%d/inbox", remote.URL, i),
			CreatedAt:   time.Now(),
		}
		if err := database.AddFollower(edge); err != nil {
			t.Fatalf("failed to seed follower: %v", err)
		}
	}

	store := NewActorStore(database, &fakeFetcher{}, testLocalURI)
	registry := NewRegistry(database, store)
	outbox := NewOutbox(database, registry, NewDeliverer(2), "local.example")

	note := &domain.Note{
		Id:        uuid.New(),
		CreatedBy: local.Name,
		Content:   "hello followers",
		Local:     true,
		CreatedAt: time.Now(),
	}

	report, err := outbox.PublishNote(context.Background(), local, note)
	if err != nil {
		t.Fatalf("PublishNote failed: %v", err)
	}

	if got := int(posts.Load()); got != followers {
		t.Errorf("send attempts = %d, want %d", got, followers)
	}
	if report.Delivered() != followers || report.Failed() != 0 {
		t.Errorf("delivered/failed = %d/%d, want %d/0", report.Delivered(), report.Failed(), followers)
	}
}

// Explicit recipients bypass the registry entirely.
func TestDeliverExplicitRecipients(t *testing.T) {
	var posts atomic.Int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer remote.Close()

	database := openTestDB(t)
	local := localTestActor(t, database)

	// An edge the explicit delivery must not pick up.
	if err := database.AddFollower(&domain.Follower{
		Id:          uuid.New(),
		OwnerURI:    local.URI,
		FollowerURI: testRemoteURI,
		InboxURI:    remote.URL + "/inbox",
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("failed to seed follower: %v", err)
	}

	store := NewActorStore(database, &fakeFetcher{}, testLocalURI)
	registry := NewRegistry(database, store)
	outbox := NewOutbox(database, registry, NewDeliverer(2), "local.example")

	report, err := outbox.Deliver(context.Background(), testEnvelope(), local, []string{remote.URL + "/users/carol/inbox"})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if got := int(posts.Load()); got != 1 {
		t.Errorf("send attempts = %d, want 1", got)
	}
	if report.Delivered() != 1 {
		t.Errorf("delivered = %d, want 1", report.Delivered())
	}
}
