package storage

import (
	"math/big"

	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// RegisterCommitment links a user to their identity commitment. A user has
// one commitment and a commitment belongs to one user: registering a
// different pair for either side returns ErrAlreadyExists. Registering the
// same pair twice is a no-op.
func (s *Storage) RegisterCommitment(userID string, commitment *big.Int) error {
	ckey := commitment.Bytes()
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	byUser := prefixeddb.NewPrefixedWriteTx(wtx, commitmentPrefix)
	byCommitment := prefixeddb.NewPrefixedWriteTx(wtx, commitmentOwnerPrefix)

	if v, err := byUser.Get([]byte(userID)); err == nil {
		var current types.BigInt
		if err := decodeArtifact(v, &current); err != nil {
			return err
		}
		if current.MathBigInt().Cmp(commitment) == 0 {
			return nil
		}
		return ErrAlreadyExists
	}
	found, err := exists(byCommitment, ckey)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	v, err := encodeArtifact(types.BigIntFrom(commitment))
	if err != nil {
		return err
	}
	if err := byUser.Set([]byte(userID), v); err != nil {
		return err
	}
	if err := byCommitment.Set(ckey, []byte(userID)); err != nil {
		return err
	}
	return wtx.Commit()
}

// Commitment returns the identity commitment of a user or ErrNotFound.
func (s *Storage) Commitment(userID string) (*big.Int, error) {
	var c types.BigInt
	if err := s.getArtifact(commitmentPrefix, []byte(userID), &c); err != nil {
		return nil, err
	}
	return c.MathBigInt(), nil
}

// CommitmentOwner returns the user that registered a commitment or
// ErrNotFound.
func (s *Storage) CommitmentOwner(commitment *big.Int) (string, error) {
	v, err := prefixeddb.NewPrefixedReader(s.db, commitmentOwnerPrefix).Get(commitment.Bytes())
	if err != nil {
		return "", ErrNotFound
	}
	return string(v), nil
}
