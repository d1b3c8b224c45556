// Package api exposes the voting service over HTTP with JSON bodies.
// Authentication is delegated to an upstream session layer which sets the
// X-User-ID header; the anonymous voting endpoints never read it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/voting"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host    string
	Port    int
	Service *voting.Service
	// Artifacts are the membership circuit artifacts served to provers.
	// Optional.
	Artifacts *circuits.CircuitArtifacts
}

// API type represents the API HTTP server.
type API struct {
	router    *chi.Mux
	svc       *voting.Service
	artifacts *circuits.CircuitArtifacts
	server    *http.Server
	addr      net.Addr
}

// New creates a new API instance with the given configuration and starts
// the HTTP server in background. Port 0 picks a free port, see Addr.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Service == nil {
		return nil, fmt.Errorf("missing voting service")
	}
	a := &API{
		svc:       conf.Service,
		artifacts: conf.Artifacts,
	}

	// Initialize router
	a.initRouter()
	ln, err := net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "addr", a.addr.String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Shutdown stops the HTTP server, waiting for the active requests.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	handle := func(method, endpoint string, h http.HandlerFunc) {
		log.Debugw("register handler", "endpoint", endpoint, "method", method)
		a.router.Method(method, endpoint, h)
	}
	handle(http.MethodGet, PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	handle(http.MethodGet, BlindPublicKeyEndpoint, a.blindPublicKey)

	// polls
	handle(http.MethodPost, PollsEndpoint, a.newPoll)
	handle(http.MethodGet, PollsEndpoint, a.polls)
	handle(http.MethodGet, PollEndpoint, a.poll)
	handle(http.MethodPost, OpenPollEndpoint, a.openPoll)
	handle(http.MethodPost, ClosePollEndpoint, a.closePoll)

	// votes
	handle(http.MethodPost, SignatureEndpoint, a.requestSignature)
	handle(http.MethodPost, RedeemEndpoint, a.redeemVote)
	handle(http.MethodPost, VotesEndpoint, a.castVote)
	handle(http.MethodGet, VoteStatusEndpoint, a.voteStatus)
	handle(http.MethodGet, ReceiptEndpoint, a.receipt)

	// groups and identities
	handle(http.MethodPost, GroupsEndpoint, a.newGroup)
	handle(http.MethodGet, GroupsEndpoint, a.groups)
	handle(http.MethodGet, GroupEndpoint, a.group)
	handle(http.MethodGet, GroupMembersEndpoint, a.groupMembers)
	handle(http.MethodPost, GroupMembersEndpoint, a.joinGroup)
	handle(http.MethodDelete, GroupMemberEndpoint, a.removeMember)
	handle(http.MethodPost, GroupSyncEndpoint, a.syncGroup)
	handle(http.MethodPost, IdentitiesEndpoint, a.registerCommitment)
	handle(http.MethodPost, BatchIdentitiesEndpoint, a.batchIdentities)
	handle(http.MethodPost, UserSyncEndpoint, a.syncUser)

	// circuit artifacts
	handle(http.MethodGet, ArtifactsEndpoint, a.artifactHashes)
	handle(http.MethodGet, ArtifactEndpoint, a.artifact)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
