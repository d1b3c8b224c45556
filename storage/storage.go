// storage package contains all the artifacts that are stored in the database,
// but also is an abstraction of a queue for the processing of them by
// different services. The storage package includes a prefixed key-value store
// that allows to store the different types of artifacts in the database. The
// following prefixes are used:
//   - 'po/' for polls
//   - 'gr/' for groups and 'gs/' for their slots
//   - 'cm/' for the identity commitment of each user and 'co/' for its owner
//   - 'ps/' for pending signatures (issued blind signatures)
//   - 'ct/' for consumed tokens
//   - 'nu/' for nullifiers
//   - 'rs/' for poll results
//   - 'pv/' for pending semaphore votes (queued) and 'pr/' for reservations
//   - 'rc/' for the receipt trees
//
// Every operation that checks a unique record and writes it together with a
// tally runs under the global lock in a single write transaction, so both
// writes are committed or none.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/storage/receipts"
	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	pollPrefix              = []byte("po/")
	groupPrefix             = []byte("gr/")
	groupSlotPrefix         = []byte("gs/")
	commitmentPrefix        = []byte("cm/")
	commitmentOwnerPrefix   = []byte("co/")
	signaturePrefix         = []byte("ps/")
	tokenPrefix             = []byte("ct/")
	nullifierPrefix         = []byte("nu/")
	resultPrefix            = []byte("rs/")
	pendingVotePrefix       = []byte("pv/")
	pendingVoteReservPrefix = []byte("pr/")
	receiptPrefix           = []byte("rc/")
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique record is inserted twice.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNoMoreElements is returned when a queue is drained.
	ErrNoMoreElements = errors.New("no more elements")
)

// Storage is the interface that wraps the basic methods to interact with the
// storage.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	receipts   *receipts.ReceiptDB
}

// New creates a new Storage instance.
func New(database db.Database) *Storage {
	return &Storage{
		db:       database,
		receipts: receipts.New(prefixeddb.NewPrefixedDatabase(database, receiptPrefix)),
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("error closing storage", "error", err.Error())
	}
}

// Receipts returns the receipt trees of the polls.
func (s *Storage) Receipts() *receipts.ReceiptDB {
	return s.receipts
}

// getArtifact reads and decodes the artifact stored under prefix/key.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores an artifact under prefix/key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes prefix/key. It returns ErrNotFound if the key does
// not exist.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if _, err := wTx.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}

// listArtifacts returns the keys stored under prefix.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}

// isReserved checks if the key has a reservation under the prefix.
func (s *Storage) isReserved(prefix, key []byte) bool {
	_, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	return err == nil
}

// setReservation stores the reservation time of the key under the prefix.
func (s *Storage) setReservation(prefix, key []byte) error {
	return s.setArtifact(prefix, key, time.Now().Unix())
}

// releaseReservations deletes every reservation under the prefix and returns
// how many there were.
func (s *Storage) releaseReservations(prefix []byte) (int, error) {
	keys, err := s.listArtifacts(prefix)
	if err != nil {
		return 0, err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), wTx.Commit()
}

// exists reports whether key is present in the (prefixed) reader.
func exists(r db.Reader, key []byte) (bool, error) {
	if _, err := r.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// compositeKey joins an id and a suffix with a separator, so every record of
// an id can be iterated with the id prefix.
func compositeKey(id string, suffix []byte) []byte {
	k := make([]byte, 0, len(id)+1+len(suffix))
	k = append(k, id...)
	k = append(k, '/')
	return append(k, suffix...)
}

func idPrefix(id string) []byte {
	return compositeKey(id, nil)
}

// ErrPollNotOpen is returned by the vote writers when the poll is not OPEN
// at commit time.
var ErrPollNotOpen = errors.New("poll is not open")

// checkPollOpen must be called with the global lock held.
func (s *Storage) checkPollOpen(pollID string) (*types.Poll, error) {
	p, err := s.Poll(pollID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.PollOpen {
		return nil, ErrPollNotOpen
	}
	return p, nil
}
