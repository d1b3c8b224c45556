package voting

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/eligibility"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/semaphore/semaphoretest"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

const (
	testAdmin = "admin"
	testRole  = "voters"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// digestProofs lets the protocol tests run without the trusted setup; the
// real proof system is exercised in TestSemaphoreGroth16.
type digestProofs = semaphoretest.DigestProofs

type testEnv struct {
	svc  *Service
	st   *storage.Storage
	db   db.Database
	elig *eligibility.Static
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithVerifier(t, digestProofs{})
}

func newTestEnvWithVerifier(t *testing.T, verifier semaphore.Verifier) *testEnv {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, blindrsa.DefaultKeyBits)
		if err != nil {
			t.Fatal(err)
		}
	})
	signer, err := blindrsa.NewSigner(testKey)
	qt.Assert(t, err, qt.IsNil)
	database := metadb.NewTest(t)
	st := storage.New(database)
	elig := eligibility.NewStatic(nil)
	svc, err := New(Config{
		Storage:     st,
		Eligibility: elig,
		Signer:      signer,
		Verifier:    verifier,
		Admins:      []string{testAdmin},
	})
	qt.Assert(t, err, qt.IsNil)
	return &testEnv{svc: svc, st: st, db: database, elig: elig}
}

func twoOptions() []types.Option {
	return []types.Option{{Index: 0, Label: "A"}, {Index: 1, Label: "B"}}
}

// openBlindPoll creates and opens a blind-token poll for testRole.
func (e *testEnv) openBlindPoll(c *qt.C) *types.Poll {
	ctx := context.Background()
	p, err := e.svc.CreatePoll(ctx, testAdmin, &PollSetup{
		Question:     "blind?",
		Options:      twoOptions(),
		Kind:         types.KindBlindToken,
		RequiredRole: testRole,
	})
	c.Assert(err, qt.IsNil)
	p, err = e.svc.OpenPoll(ctx, testAdmin, p.ID)
	c.Assert(err, qt.IsNil)
	return p
}

// newSemaphorePoll creates a DRAFT semaphore poll on the testRole group.
func (e *testEnv) newSemaphorePoll(c *qt.C, mode types.VerificationMode) *types.Poll {
	ctx := context.Background()
	g, err := e.svc.CreateGroup(ctx, testAdmin, testRole, "general")
	c.Assert(err, qt.IsNil)
	p, err := e.svc.CreatePoll(ctx, testAdmin, &PollSetup{
		Question: "semaphore?",
		Options:  twoOptions(),
		Kind:     types.KindSemaphore,
		Mode:     mode,
		GroupID:  g.ID,
	})
	c.Assert(err, qt.IsNil)
	return p
}

// addVoter grants the role to a user and registers a fresh identity.
func (e *testEnv) addVoter(c *qt.C, userID string) *semaphore.Identity {
	id, err := semaphore.GenerateIdentity([]byte("seed of " + userID))
	c.Assert(err, qt.IsNil)
	e.elig.Grant(userID, testRole)
	c.Assert(e.svc.RegisterCommitment(context.Background(), userID, types.BigIntFrom(id.Commitment)), qt.IsNil)
	return id
}

// clientGroup rebuilds a group tree from the published member list, the way
// a voter does before proving.
func (e *testEnv) clientGroup(c *qt.C, groupID string) *semaphore.Group {
	slots, err := e.svc.GroupMembers(context.Background(), groupID)
	c.Assert(err, qt.IsNil)
	commitments := make([]*types.BigInt, len(slots))
	for i := range slots {
		commitments[i] = slots[i].Commitment
	}
	g, err := semaphore.NewGroup(bigInts(commitments)...)
	c.Assert(err, qt.IsNil)
	return g
}

// withClock makes the service see now as the current time.
func (e *testEnv) withClock(now time.Time) {
	e.svc.now = func() time.Time { return now }
}

func bigInts(in []*types.BigInt) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		if v != nil {
			out[i] = v.MathBigInt()
		}
	}
	return out
}
