package storage

import (
	"fmt"

	"go.vocdoni.io/dvote/db/prefixeddb"
)

// MarkSignatureIssued records that a blind signature was issued to userID for
// pollID. Only the marker is stored, never the signature. It returns
// ErrAlreadyExists if the user already got one.
func (s *Storage) MarkSignatureIssued(pollID, userID string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wtx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), signaturePrefix)
	defer wtx.Discard()
	key := compositeKey(pollID, []byte(userID))
	found, err := exists(wtx, key)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	if err := wtx.Set(key, []byte{1}); err != nil {
		return err
	}
	return wtx.Commit()
}

// SignatureIssued reports whether userID already got a blind signature for
// pollID.
func (s *Storage) SignatureIssued(pollID, userID string) (bool, error) {
	return exists(prefixeddb.NewPrefixedReader(s.db, signaturePrefix), compositeKey(pollID, []byte(userID)))
}

// RedeemToken consumes a token and counts its vote in a single transaction.
// It returns ErrAlreadyExists if the token hash was already consumed and
// ErrPollNotOpen if the poll closed before the write. Nothing is written on
// error.
func (s *Storage) RedeemToken(pollID string, tokenHash []byte, option int) error {
	if len(tokenHash) == 0 {
		return fmt.Errorf("empty token hash")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	p, err := s.checkPollOpen(pollID)
	if err != nil {
		return err
	}
	if !p.HasOption(option) {
		return fmt.Errorf("option %d out of range", option)
	}

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	tokens := prefixeddb.NewPrefixedWriteTx(wtx, tokenPrefix)
	key := compositeKey(pollID, tokenHash)
	found, err := exists(tokens, key)
	if err != nil {
		return err
	}
	if found {
		return ErrAlreadyExists
	}
	if err := tokens.Set(key, []byte{1}); err != nil {
		return err
	}
	if err := incrementResult(prefixeddb.NewPrefixedWriteTx(wtx, resultPrefix), pollID, option); err != nil {
		return err
	}
	return wtx.Commit()
}

// CountConsumedTokens returns how many tokens were redeemed in pollID.
func (s *Storage) CountConsumedTokens(pollID string) (int, error) {
	return s.countKeys(tokenPrefix, pollID)
}

// countKeys counts the records of an id under prefix.
func (s *Storage) countKeys(prefix []byte, id string) (int, error) {
	count := 0
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(idPrefix(id), func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0, err
	}
	return count, nil
}
