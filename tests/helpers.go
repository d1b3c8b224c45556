package tests

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/api"
	"github.com/vocdoni/anonpoll/api/client"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/eligibility"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/semaphore/semaphoretest"
	"github.com/vocdoni/anonpoll/service"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/types"
	"github.com/vocdoni/anonpoll/voting"
	"go.vocdoni.io/dvote/db/metadb"
)

const (
	testAdmin = "admin"
	testRole  = "voters"
)

var testVoters = []string{"alice", "bob", "carol"}

// NewTestService starts the API, the vote processor and the poll scheduler
// on a fresh storage. Every test voter holds testRole. It returns the API
// port; the services are stopped when the test ends.
func NewTestService(t *testing.T, ctx context.Context) int {
	c := qt.New(t)
	sk, err := rsa.GenerateKey(rand.Reader, blindrsa.DefaultKeyBits)
	c.Assert(err, qt.IsNil)
	signer, err := blindrsa.NewSigner(sk)
	c.Assert(err, qt.IsNil)

	stg := storage.New(metadb.NewTest(t))
	svc, err := voting.New(voting.Config{
		Storage:     stg,
		Eligibility: eligibility.NewStatic(map[string][]string{testRole: testVoters}),
		Signer:      signer,
		Verifier:    semaphoretest.DigestProofs{},
		Admins:      []string{testAdmin},
	})
	c.Assert(err, qt.IsNil)

	vp := service.NewVoteProcessor(stg, semaphoretest.DigestProofs{}, 2, 5*time.Second)
	c.Assert(vp.Start(ctx), qt.IsNil)
	ps := service.NewPollScheduler(svc, 100*time.Millisecond)
	c.Assert(ps.Start(ctx), qt.IsNil)
	apiSrv := service.NewAPI(svc, nil, "127.0.0.1", 0)
	c.Assert(apiSrv.Start(ctx), qt.IsNil)
	t.Cleanup(func() {
		apiSrv.Stop()
		ps.Stop()
		vp.Stop()
		stg.Close()
	})
	_, port := apiSrv.HostPort()
	return port
}

// NewTestClient creates a new anonymous API client for testing.
func NewTestClient(port int) (*client.HTTPclient, error) {
	return client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// createPoll creates and opens a poll as the admin.
func createPoll(c *qt.C, cli *client.HTTPclient, setup *voting.PollSetup) *types.Poll {
	admin := cli.WithUserID(testAdmin)
	p := &types.Poll{}
	c.Assert(admin.Do(client.HTTPPOST, setup, p, api.PollsEndpoint), qt.IsNil)
	c.Assert(p.Status, qt.Equals, types.PollDraft)
	c.Assert(admin.Do(client.HTTPPOST, nil, p, "polls", p.ID, "open"), qt.IsNil)
	c.Assert(p.Status, qt.Equals, types.PollOpen)
	return p
}

func twoOptions() []types.Option {
	return []types.Option{{Index: 0, Label: "yes"}, {Index: 1, Label: "no"}}
}

// blindRedemption gets a blind signature for the user and returns the
// unblinded redemption voting option.
func blindRedemption(c *qt.C, cli *client.HTTPclient, user, pollID string, option int) *voting.Redemption {
	var key api.BlindPublicKey
	c.Assert(cli.Do(client.HTTPGET, nil, &key, api.BlindPublicKeyEndpoint), qt.IsNil)
	pub, err := blindrsa.ParsePublicKeyPEM([]byte(key.PublicKey))
	c.Assert(err, qt.IsNil)
	suite, err := blindrsa.NewClient(pub)
	c.Assert(err, qt.IsNil)

	token, err := blindrsa.NewToken(rand.Reader, pollID)
	c.Assert(err, qt.IsNil)
	prepared, err := suite.Prepare([]byte(token))
	c.Assert(err, qt.IsNil)
	blinded, state, err := suite.Blind(prepared)
	c.Assert(err, qt.IsNil)

	var resp api.SignatureResponse
	c.Assert(cli.WithUserID(user).Do(client.HTTPPOST,
		&api.SignatureRequest{BlindedMessage: blindrsa.Encode(blinded)}, &resp, "polls", pollID, "signature"), qt.IsNil)
	blindSig, err := blindrsa.Decode(resp.BlindSignature)
	c.Assert(err, qt.IsNil)
	sig, err := suite.Finalize(state, blindSig)
	c.Assert(err, qt.IsNil)
	return &voting.Redemption{
		Token:     blindrsa.Encode(prepared),
		Signature: blindrsa.Encode(sig),
		Option:    &option,
	}
}

// memberGroup rebuilds the group tree from the published member list.
func memberGroup(c *qt.C, cli *client.HTTPclient, groupID string) *semaphore.Group {
	var members api.GroupMembers
	c.Assert(cli.Do(client.HTTPGET, nil, &members, "groups", groupID, "members"), qt.IsNil)
	commitments := make([]*big.Int, len(members.Slots))
	for i, s := range members.Slots {
		commitments[i] = s.Commitment.MathBigInt()
	}
	group, err := semaphore.NewGroup(commitments...)
	c.Assert(err, qt.IsNil)
	c.Assert(types.BigIntFrom(group.Root()).Equal(members.Root), qt.IsTrue)
	return group
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(c *qt.C, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			c.Fatalf("condition not met after %s", timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
