package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
	"net/url"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vocdoni/anonpoll/api"
	"github.com/vocdoni/anonpoll/api/client"
	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/types"
	"github.com/vocdoni/anonpoll/util"
	"github.com/vocdoni/anonpoll/voting"
)

// e2etest runs both voting protocols against a running anonpoll daemon. The
// users must hold the role in the daemon eligibility file and the admin must
// be one of its admins.
func main() {
	host := flag.String("host", "http://localhost:8080", "anonpoll API URL")
	admin := flag.String("admin", "admin", "admin user id")
	role := flag.String("role", "voters", "role held by the users")
	users := flag.String("users", "alice,bob,carol", "comma separated user ids")
	category := flag.String("category", "e2e", "category of the semaphore group")
	deferred := flag.Bool("deferred", false, "verify the semaphore proofs in background")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	cli, err := client.New(*host)
	if err != nil {
		log.Fatal(err)
	}
	voters := util.SplitList(*users)
	if len(voters) == 0 {
		log.Fatal("no users")
	}
	adminCli := cli.WithUserID(*admin)
	options := []types.Option{{Index: 0, Label: "yes"}, {Index: 1, Label: "no"}}

	// blind-token poll
	start := time.Now()
	var p types.Poll
	must(adminCli.Do(client.HTTPPOST, &voting.PollSetup{
		Question:     "e2e blind-token poll",
		Options:      options,
		Kind:         types.KindBlindToken,
		RequiredRole: *role,
	}, &p, api.PollsEndpoint))
	must(adminCli.Do(client.HTTPPOST, nil, &p, "polls", p.ID, "open"))
	var key api.BlindPublicKey
	must(cli.Do(client.HTTPGET, nil, &key, api.BlindPublicKeyEndpoint))
	pub, err := blindrsa.ParsePublicKeyPEM([]byte(key.PublicKey))
	must(err)
	for i, user := range voters {
		redemption := blindToken(cli.WithUserID(user), pub, p.ID, i%len(options))
		// redemptions go through the anonymous client
		must(cli.Do(client.HTTPPOST, redemption, nil, "polls", p.ID, "redeem"))
	}
	must(adminCli.Do(client.HTTPPOST, nil, &p, "polls", p.ID, "close"))
	log.Infow("blind-token poll closed", "poll", p.ID, "results", p.Results,
		"resultsHash", p.ResultsHash.String(), "took", time.Since(start).String())

	// semaphore poll
	start = time.Now()
	keys := fetchKeys(cli, *host)
	log.Infow("membership keys fetched", "took", time.Since(start).String())
	var g types.Group
	must(adminCli.Do(client.HTTPPOST, &api.NewGroup{RoleID: *role, Category: *category}, &g, api.GroupsEndpoint))
	identities := make([]*semaphore.Identity, len(voters))
	for i, user := range voters {
		identities[i], err = semaphore.RandomIdentity()
		must(err)
		must(cli.WithUserID(user).Do(client.HTTPPOST,
			&api.Commitment{Commitment: types.BigIntFrom(identities[i].Commitment)}, nil, api.IdentitiesEndpoint))
	}
	mode := types.ModeImmediate
	if *deferred {
		mode = types.ModeDeferred
	}
	must(adminCli.Do(client.HTTPPOST, &voting.PollSetup{
		Question: "e2e semaphore poll",
		Options:  options,
		Kind:     types.KindSemaphore,
		Mode:     mode,
		GroupID:  g.ID,
	}, &p, api.PollsEndpoint))
	must(adminCli.Do(client.HTTPPOST, nil, &p, "polls", p.ID, "open"))

	var members api.GroupMembers
	must(cli.Do(client.HTTPGET, nil, &members, "groups", g.ID, "members"))
	commitments := make([]*big.Int, len(members.Slots))
	for i, s := range members.Slots {
		commitments[i] = s.Commitment.MathBigInt()
	}
	group, err := semaphore.NewGroup(commitments...)
	must(err)
	if !types.BigIntFrom(group.Root()).Equal(members.Root) {
		log.Fatalf("rebuilt group root %s does not match %s", group.Root(), members.Root)
	}
	for i, id := range identities {
		proof, err := semaphore.GenerateVoteProof(keys, id, group, p.ID, i%len(options))
		must(err)
		var vote api.VoteResponse
		must(cli.Do(client.HTTPPOST, proof, &vote, "polls", p.ID, "votes"))
		log.Infow("semaphore vote cast", "index", i, "status", vote.Status)
	}
	closeWhenVerified(adminCli, p.ID, &p)
	log.Infow("semaphore poll closed", "poll", p.ID, "results", p.Results,
		"resultsHash", p.ResultsHash.String(), "took", time.Since(start).String())
}

// blindToken runs the client side of the issuance for the user and returns
// the anonymous redemption.
func blindToken(user *client.HTTPclient, pub *rsa.PublicKey, pollID string, option int) *voting.Redemption {
	suite, err := blindrsa.NewClient(pub)
	must(err)
	token, err := blindrsa.NewToken(rand.Reader, pollID)
	must(err)
	prepared, err := suite.Prepare([]byte(token))
	must(err)
	blinded, state, err := suite.Blind(prepared)
	must(err)
	var resp api.SignatureResponse
	must(user.Do(client.HTTPPOST, &api.SignatureRequest{BlindedMessage: blindrsa.Encode(blinded)},
		&resp, "polls", pollID, "signature"))
	blindSig, err := blindrsa.Decode(resp.BlindSignature)
	must(err)
	sig, err := suite.Finalize(state, blindSig)
	must(err)
	return &voting.Redemption{
		Token:     blindrsa.Encode(prepared),
		Signature: blindrsa.Encode(sig),
		Option:    &option,
	}
}

// fetchKeys downloads the membership circuit artifacts published by the
// daemon, the same keys it verifies with. Each artifact is checked against
// its hash and cached locally.
func fetchKeys(cli *client.HTTPclient, host string) *membership.Keys {
	var hashes api.Artifacts
	must(cli.Do(client.HTTPGET, nil, &hashes, api.ArtifactsEndpoint))
	remote := func(hash types.HexBytes) *circuits.Artifact {
		u, err := url.JoinPath(host, "artifacts", hash.String())
		must(err)
		return &circuits.Artifact{Hash: hash, RemoteURL: u}
	}
	ca := circuits.NewCircuitArtifacts(remote(hashes.Circuit), remote(hashes.ProvingKey), remote(hashes.VerifyingKey))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	must(ca.DownloadAll(ctx))
	keys, err := membership.LoadKeys(ca)
	must(err)
	return keys
}

// closeWhenVerified closes the poll, retrying while votes are pending
// verification.
func closeWhenVerified(adminCli *client.HTTPclient, pollID string, p *types.Poll) {
	for i := 0; ; i++ {
		err := adminCli.Do(client.HTTPPOST, nil, p, "polls", pollID, "close")
		if err == nil {
			return
		}
		var respErr *client.ResponseError
		if !errors.As(err, &respErr) || respErr.Code() != api.ErrInvalidState.Code || i > 60 {
			log.Fatal(err)
		}
		time.Sleep(time.Second)
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
