package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/api"
	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/voting"
)

const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	svc       *voting.Service
	artifacts *circuits.CircuitArtifacts
	api       *api.API
	mu        sync.Mutex
	host      string
	port      int
}

// NewAPI creates a new APIService instance. The artifacts may be nil.
func NewAPI(svc *voting.Service, artifacts *circuits.CircuitArtifacts, host string, port int) *APIService {
	return &APIService{
		svc:       svc,
		artifacts: artifacts,
		host:      host,
		port:      port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	a, err := api.New(&api.APIConfig{
		Host:      as.host,
		Port:      as.port,
		Service:   as.svc,
		Artifacts: as.artifacts,
	})
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.api = a
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Shutdown(ctx); err != nil {
		log.Warnw("API server shutdown", "error", err.Error())
	}
	as.api = nil
}

// HostPort returns the host and port the API server listens on. With a
// configured port 0 the port is the one picked at Start.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api == nil {
		return as.host, as.port
	}
	host, port, err := net.SplitHostPort(as.api.Addr().String())
	if err != nil {
		return as.host, as.port
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return as.host, as.port
	}
	return host, p
}
