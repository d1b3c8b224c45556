package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/eligibility"
	"github.com/vocdoni/anonpoll/semaphore/semaphoretest"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/voting"
	"go.vocdoni.io/dvote/db/metadb"
)

func newVotingService(t *testing.T, stg *storage.Storage) *voting.Service {
	sk, err := rsa.GenerateKey(rand.Reader, blindrsa.DefaultKeyBits)
	qt.Assert(t, err, qt.IsNil)
	signer, err := blindrsa.NewSigner(sk)
	qt.Assert(t, err, qt.IsNil)
	svc, err := voting.New(voting.Config{
		Storage:     stg,
		Eligibility: eligibility.NewStatic(nil),
		Signer:      signer,
		Verifier:    semaphoretest.DigestProofs{},
	})
	qt.Assert(t, err, qt.IsNil)
	return svc
}

func TestAPIService(t *testing.T) {
	c := qt.New(t)

	store := storage.New(metadb.NewTest(t))
	defer store.Close()

	// Port 0 lets the OS choose an available port
	apiService := NewAPI(newVotingService(t, store), nil, "127.0.0.1", 0)

	ctx := context.Background()
	c.Assert(apiService.Start(ctx), qt.IsNil)
	defer apiService.Stop()

	host, port := apiService.HostPort()
	c.Assert(port, qt.Not(qt.Equals), 0)
	resp, err := http.Get(fmt.Sprintf("http://%s:%d/ping", host, port))
	c.Assert(err, qt.IsNil)
	c.Assert(resp.StatusCode, qt.Equals, http.StatusOK)
	c.Assert(resp.Body.Close(), qt.IsNil)

	// Test stopping and restarting
	apiService.Stop()
	c.Assert(apiService.Start(ctx), qt.IsNil)

	// Test starting an already running service
	c.Assert(apiService.Start(ctx), qt.ErrorMatches, "service already running")
}
