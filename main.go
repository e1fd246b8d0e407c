package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/activitypub"
	"github.com/flakm/fedipage/compose"
	"github.com/flakm/fedipage/db"
	"github.com/flakm/fedipage/domain"
	"github.com/flakm/fedipage/util"
	"github.com/flakm/fedipage/web"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal("could not read configuration", "err", err)
	}

	log.Info("starting", "actor", conf.ActorURI(), "db", conf.Conf.DbPath)

	database, err := db.Open(conf.Conf.DbPath)
	if err != nil {
		log.Fatal("could not open database", "err", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal("could not run migrations", "err", err)
	}

	fetcher := activitypub.NewHTTPFetcher()
	store := activitypub.NewActorStore(database, fetcher, conf.ActorURI())

	if err := bootstrapLocalActor(conf, store); err != nil {
		log.Fatal("could not provision local actor", "err", err)
	}

	registry := activitypub.NewRegistry(database, store)
	deliverer := activitypub.NewDeliverer(conf.Conf.FanoutWorkers)
	outbox := activitypub.NewOutbox(database, registry, deliverer, conf.Conf.SslDomain)
	inbox := activitypub.NewInbox(store, registry, outbox, database, conf.ActorURI())

	server := web.NewServer(conf, database, store, registry, inbox, outbox)

	httpServer := &http.Server{
		Addr:              server.ListenAddr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", "err", err)
		}
	}()

	var sshServer interface {
		Shutdown(ctx context.Context) error
	}
	if conf.Conf.WithSsh {
		s, err := compose.NewServer(conf, database, store, outbox).Listen()
		if err != nil {
			log.Fatal("could not create ssh server", "err", err)
		}
		sshServer = s
		go func() {
			log.Info("ssh compose server listening", "port", conf.Conf.SshPort)
			if err := s.ListenAndServe(); err != nil {
				log.Error("ssh server stopped", "err", err)
			}
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	if sshServer != nil {
		if err := sshServer.Shutdown(ctx); err != nil {
			log.Error("ssh shutdown failed", "err", err)
		}
	}
}

// bootstrapLocalActor creates the local actor record on first start. The
// keypair is minted once and kept; the actor document serves the public
// half, outgoing signatures use the private half.
func bootstrapLocalActor(conf *util.AppConfig, store *activitypub.ActorStore) error {
	_, err := store.ByName(conf.Conf.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	keys, err := util.GeneratePemKeypair()
	if err != nil {
		return err
	}

	actor := &domain.Actor{
		Name:            conf.Conf.Username,
		URI:             conf.ActorURI(),
		Inbox:           conf.ActorURI() + "/inbox",
		SharedInbox:     "https://" + conf.Conf.SslDomain + "/inbox",
		PublicKeyPem:    keys.Public,
		PrivateKeyPem:   keys.Private,
		DisplayName:     conf.Conf.DisplayName,
		Summary:         conf.Conf.Summary,
		IconURL:         conf.Conf.IconURL,
		Local:           true,
		LastRefreshedAt: time.Now(),
	}

	if err := store.Save(actor); err != nil {
		return err
	}

	log.Info("provisioned local actor", "uri", actor.URI)
	return nil
}
