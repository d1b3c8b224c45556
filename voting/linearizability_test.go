package voting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	porc "github.com/anishathalye/porcupine"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/types"
)

// voteInput identifies the ballot (a nullifier or a token) an operation
// submits.
type voteInput struct {
	key string
}

type voteOutput struct {
	accepted bool
}

// oneVoteModel describes a ballot that is accepted exactly once: the first
// submission in linearization order succeeds and every later one is rejected.
var oneVoteModel = porc.Model{
	Partition: func(history []porc.Operation) [][]porc.Operation {
		m := make(map[string][]porc.Operation)
		for _, op := range history {
			key := op.Input.(voteInput).key
			m[key] = append(m[key], op)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ret := make([][]porc.Operation, 0, len(keys))
		for _, k := range keys {
			ret = append(ret, m[k])
		}
		return ret
	},
	Init: func() interface{} {
		return false
	},
	Step: func(state, input, output interface{}) (bool, interface{}) {
		voted := state.(bool)
		accepted := output.(voteOutput).accepted
		if voted {
			return !accepted, true
		}
		return accepted, accepted
	},
	DescribeOperation: func(input, output interface{}) string {
		return fmt.Sprintf("vote(%s) -> %v", input.(voteInput).key, output.(voteOutput).accepted)
	},
}

// recorder collects the concurrent history of submissions.
type recorder struct {
	mu    sync.Mutex
	ops   []porc.Operation
	start time.Time
	errs  []error
}

func (r *recorder) submit(client int, key string, fn func() error) {
	call := time.Since(r.start).Nanoseconds()
	err := fn()
	ret := time.Since(r.start).Nanoseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil && !errors.Is(err, ErrForbidden) {
		r.errs = append(r.errs, err)
		return
	}
	r.ops = append(r.ops, porc.Operation{
		ClientId: client,
		Input:    voteInput{key: key},
		Call:     call,
		Output:   voteOutput{accepted: err == nil},
		Return:   ret,
	})
}

func TestConcurrentDoubleVotesAreLinearizable(t *testing.T) {
	c := qt.New(t)
	e := newTestEnv(t)
	ctx := context.Background()

	const (
		voters   = 4
		attempts = 5
	)
	users := make([]string, voters)
	identities := make([]*semaphore.Identity, voters)
	for i := range users {
		users[i] = fmt.Sprintf("user%d", i)
		identities[i] = e.addVoter(c, users[i])
	}
	semPoll := e.newSemaphorePoll(c, types.ModeImmediate)
	_, err := e.svc.OpenPoll(ctx, testAdmin, semPoll.ID)
	c.Assert(err, qt.IsNil)
	group := e.clientGroup(c, semPoll.GroupID)
	tokPoll := e.openBlindPoll(c)

	proofs := make([]*semaphore.Proof, voters)
	ballots := make([]*ballot, voters)
	for i := range users {
		proofs[i], err = semaphore.GenerateVoteProof(digestProofs{}, identities[i], group, semPoll.ID, i%2)
		c.Assert(err, qt.IsNil)
		ballots[i] = e.issueToken(c, users[i], tokPoll.ID, tokPoll.ID)
	}

	rec := &recorder{start: time.Now()}
	var wg sync.WaitGroup
	client := 0
	for i := 0; i < voters; i++ {
		for a := 0; a < attempts; a++ {
			proof, b, option := proofs[i], ballots[i], a%2
			wg.Add(2)
			go func(client int, key string) {
				defer wg.Done()
				rec.submit(client, key, func() error {
					_, err := e.svc.CastVote(ctx, semPoll.ID, proof)
					return err
				})
			}(client, fmt.Sprintf("nullifier-%d", i))
			go func(client int, key string) {
				defer wg.Done()
				rec.submit(client, key, func() error {
					return e.svc.RedeemVote(ctx, b.redemption(tokPoll.ID, option))
				})
			}(client+1, fmt.Sprintf("token-%d", i))
			client += 2
		}
	}
	wg.Wait()

	c.Assert(rec.errs, qt.HasLen, 0)
	c.Assert(rec.ops, qt.HasLen, 2*voters*attempts)
	c.Assert(porc.CheckOperations(oneVoteModel, rec.ops), qt.IsTrue)

	// each ballot was counted exactly once
	for _, id := range []string{semPoll.ID, tokPoll.ID} {
		p, err := e.svc.ClosePoll(ctx, testAdmin, id)
		c.Assert(err, qt.IsNil)
		c.Assert(p.Results[0]+p.Results[1], qt.Equals, uint64(voters))
	}
}
