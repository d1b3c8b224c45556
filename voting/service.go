// Package voting implements the anonymous voting protocols on top of the
// storage: the poll lifecycle, blind-token issuance and redemption, semaphore
// vote casting and group membership sync.
package voting

import (
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/eligibility"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/storage"
)

// Config holds the collaborators of a Service.
type Config struct {
	Storage     *storage.Storage
	Eligibility eligibility.Source
	// Signer holds the blind signature private key of the deployment.
	Signer *blindrsa.Suite
	// Verifier verifies semaphore proofs.
	Verifier semaphore.Verifier
	// Admins are the user ids allowed to manage polls and groups.
	Admins []string
}

// Service runs the voting protocols. It is safe for concurrent use.
type Service struct {
	st       *storage.Storage
	elig     eligibility.Source
	signer   *blindrsa.Suite
	verifier semaphore.Verifier
	admins   map[string]struct{}

	// groupMu serializes group mutations and the opening of polls, so a
	// group root never changes between the sync of a poll and its opening.
	groupMu sync.Mutex

	now func() time.Time
}

// New creates a voting Service.
func New(cfg Config) (*Service, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("missing storage")
	}
	if cfg.Eligibility == nil {
		return nil, fmt.Errorf("missing eligibility source")
	}
	if cfg.Signer == nil || !cfg.Signer.CanSign() {
		return nil, fmt.Errorf("missing blind signer")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("missing proof verifier")
	}
	s := &Service{
		st:       cfg.Storage,
		elig:     cfg.Eligibility,
		signer:   cfg.Signer,
		verifier: cfg.Verifier,
		admins:   make(map[string]struct{}),
		now:      time.Now,
	}
	for _, a := range cfg.Admins {
		if a != "" {
			s.admins[a] = struct{}{}
		}
	}
	return s, nil
}

// Storage returns the storage used by the service.
func (s *Service) Storage() *storage.Storage {
	return s.st
}

// Signer returns the blind signature suite of the deployment.
func (s *Service) Signer() *blindrsa.Suite {
	return s.signer
}

// IsAdmin reports whether userID may manage polls and groups.
func (s *Service) IsAdmin(userID string) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *Service) requireAdmin(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	if !s.IsAdmin(userID) {
		return fmt.Errorf("%w: admin only", ErrForbidden)
	}
	return nil
}
