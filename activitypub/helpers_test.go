package activitypub

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
)

const (
	testLocalURI  = "https://local.example/users/alice"
	testRemoteURI = "https://remote.example/users/bob"
)

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
	pubPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	}))

	return privPEM, pubPEM
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func localTestActor(t *testing.T, database *db.DB) *domain.Actor {
	t.Helper()
	privPEM, pubPEM := testKeyPair(t)
	actor := &domain.Actor{
		Name:            "alice",
		URI:             testLocalURI,
		Inbox:           testLocalURI + "/inbox",
		PublicKeyPem:    pubPEM,
		PrivateKeyPem:   privPEM,
		Local:           true,
		LastRefreshedAt: time.Now(),
	}
	if err := database.UpsertActor(actor); err != nil {
		t.Fatalf("failed to save local actor: %v", err)
	}
	return actor
}

func remotePerson(uri, inbox, pubPEM string) *Person {
	p := &Person{
		ID:                uri,
		Type:              "Person",
		PreferredUsername: "bob",
		Inbox:             inbox,
	}
	p.PublicKey.ID = uri + "#main-key"
	p.PublicKey.Owner = uri
	p.PublicKey.PublicKeyPem = pubPEM
	return p
}

// fakeFetcher serves actor documents from memory and counts fetches.
type fakeFetcher struct {
	persons map[string]*Person
	calls   int
}

func (f *fakeFetcher) FetchActor(ctx context.Context, uri string) (*Person, error) {
	f.calls++
	p, ok := f.persons[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, uri)
	}
	return p, nil
}

func (f *fakeFetcher) FetchObject(ctx context.Context, uri string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, uri)
}
