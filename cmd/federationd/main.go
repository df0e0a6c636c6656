/*
Copyright 2025, 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/LemmyNet/lemmy-federate/internal/fanout"
	"github.com/LemmyNet/lemmy-federate/internal/fetcher"
	"github.com/LemmyNet/lemmy-federate/internal/handlers"
	"github.com/LemmyNet/lemmy-federate/internal/inbound"
	"github.com/LemmyNet/lemmy-federate/internal/logging"
	"github.com/LemmyNet/lemmy-federate/internal/memsink"
	"github.com/LemmyNet/lemmy-federate/internal/signer"
	"github.com/LemmyNet/lemmy-federate/internal/store"
	"github.com/LemmyNet/lemmy-federate/internal/store/sqlite"
	"github.com/LemmyNet/lemmy-federate/internal/supervisor"
)

var (
	domain        = flag.String("domain", "localhost.localdomain:8443", "Domain name")
	logLevel      = flag.Int("loglevel", int(slog.LevelInfo), "Logging verbosity")
	dbPath        = flag.String("db", "federation.sqlite3", "Database path")
	addr          = flag.String("addr", ":8443", "HTTP listening address")
	blockListPath = flag.String("blocklist", "", "Blocked-domain CSV")
	cfgPath       = flag.String("cfg", "", "Configuration file")
	dumpCfg       = flag.Bool("dumpcfg", false, "Print default configuration and exit")
)

func main() {
	flag.Parse()

	var c cfg.Config

	if *dumpCfg {
		c.FillDefaults()
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "\t")
		if err := e.Encode(&c); err != nil {
			panic(err)
		}
		return
	}

	if *cfgPath != "" {
		f, err := os.Open(*cfgPath)
		if err != nil {
			panic(err)
		}
		err = json.NewDecoder(f).Decode(&c)
		f.Close()
		if err != nil {
			panic(err)
		}
	}

	if *logLevel == int(slog.LevelDebug) {
		c.Debug = true
	}
	c.DatabasePath = *dbPath
	c.FillDefaults()

	log := logging.New(c.Debug)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-sigs:
			log.Info("Received termination signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	db, err := sqlite.Open(ctx, log, c.DatabasePath, c.DatabaseOptions)
	if err != nil {
		panic(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()

	var blocked fetcher.BlockList = noBlockList{}
	if *blockListPath != "" {
		bl, err := cfg.NewDomainList(log, *blockListPath)
		if err != nil {
			panic(fmt.Errorf("load blocklist: %w", err))
		}
		defer bl.Close()
		blocked = bl
	}

	instanceActor, err := ensureInstanceActor(ctx, db, *domain)
	if err != nil {
		panic(fmt.Errorf("create instance actor: %w", err))
	}

	s, err := signer.NewSigner()
	if err != nil {
		panic(fmt.Errorf("create signer: %w", err))
	}

	f := fetcher.New(&c, blocked, s, instanceActor.ID+"#main-key", instanceActor.PrivateKeyPem)

	log2 := activitylog.New(db, db, c.ReceivedBagTTL)

	router := inbound.New(*domain, &c, db, log2, f, log)

	fan := fanout.New(*domain, db, log2)

	sink := memsink.New()

	deps := &handlers.Deps{
		Domain:      *domain,
		Actors:      db,
		Followers:   db,
		Log:         log2,
		Fetcher:     f,
		Content:     sink,
		Votes:       sink,
		Moderation:  sink,
		Reports:     sink,
		Collections: sink,
		Communities: sink,
		Fanout:      fan,
		Dispatch:    router.DispatchInner,
	}

	router.Register(ap.Follow, handlers.NewFollowHandler(deps))
	router.Register(ap.Accept, handlers.NewAcceptHandler(deps))
	router.Register(ap.Undo, handlers.NewUndoHandler(deps))
	router.Register(ap.Create, handlers.NewCreateHandler(deps))
	router.Register(ap.Update, handlers.NewUpdateHandler(deps))
	router.Register(ap.Delete, handlers.NewDeleteHandler(deps))
	router.Register(ap.Like, handlers.NewLikeHandler(deps))
	router.Register(ap.Dislike, handlers.NewDislikeHandler(deps))
	router.Register(ap.Block, handlers.NewBlockHandler(deps))
	router.Register(ap.Lock, handlers.NewLockHandler(deps))
	router.Register(ap.Report, handlers.NewReportHandler(deps))
	router.Register(ap.CollectionAdd, handlers.NewCollectionAddHandler(deps))
	router.Register(ap.CollectionRemove, handlers.NewCollectionRemoveHandler(deps))
	router.Register(ap.Announce, handlers.NewAnnounceHandler(deps))

	super := supervisor.New(&c, db, db, db, db, log2, s, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/inbox", inboxHandler(&c, router, log))
	mux.HandleFunc("/inbox/shared", inboxHandler(&c, router, log))

	server := &http.Server{Addr: *addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP listener failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := super.Run(ctx); err != nil {
			log.Error("Supervisor exited", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.ShutdownDrainTimeout)
	_ = server.Shutdown(shutdownCtx)
	shutdownCancel()

	wg.Wait()
}

func inboxHandler(c *cfg.Config, router *inbound.Router, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := inbound.ReadBody(r, c.MaxRequestBodySize)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}

		if err := router.Deliver(r.Context(), r, body); err != nil {
			log.Warn("Failed to process inbound activity", "error", err, "path", r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

type noBlockList struct{}

func (noBlockList) Contains(string) bool { return false }

// ensureInstanceActor returns this instance's own federation actor,
// generating and persisting an RSA keypair for it on first run.
func ensureInstanceActor(ctx context.Context, actors store.ActorStore, domain string) (*store.Actor, error) {
	id := fmt.Sprintf("https://%s/actor", domain)

	if a, err := actors.GetActor(ctx, id); err == nil {
		return a, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	a := &store.Actor{
		ID:            id,
		Kind:          ap.Site,
		Inbox:         id + "/inbox",
		SharedInbox:   fmt.Sprintf("https://%s/inbox", domain),
		PublicKeyPem:  string(pubPEM),
		PrivateKeyPem: string(privPEM),
		Local:         true,
	}

	if err := actors.PutActor(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}
