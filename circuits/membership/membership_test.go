package membership

import (
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/crypto/hash/mimc"
)

var (
	keysOnce sync.Once
	testKeys *Keys
	keysErr  error
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "anonpoll-membership")
	if err != nil {
		panic(err)
	}
	circuits.BaseDir = dir
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func setupKeys(t *testing.T) *Keys {
	keysOnce.Do(func() {
		testKeys, keysErr = Setup()
	})
	qt.Assert(t, keysErr, qt.IsNil)
	return testKeys
}

// singleLeafAssignment builds the witness of a tree whose only member is the
// commitment of secret, at index 0.
func singleLeafAssignment(secret, scope *big.Int, message int64) *Circuit {
	node := mimc.MustHash(secret)
	zero := big.NewInt(0)
	a := &Circuit{Secret: secret, Scope: scope, Message: message}
	for i := 0; i < Depth; i++ {
		a.PathBits[i] = 0
		a.Siblings[i] = zero
		node = mimc.MustHash(node, zero)
		zero = mimc.MustHash(zero, zero)
	}
	a.Root = node
	a.Nullifier = mimc.MustHash(scope, secret)
	return a
}

func TestCircuitSolves(t *testing.T) {
	assert := test.NewAssert(t)
	valid := singleLeafAssignment(big.NewInt(42), big.NewInt(7), 1)
	assert.SolvingSucceeded(&Circuit{}, valid, test.WithCurves(ecc.BN254))

	badNullifier := singleLeafAssignment(big.NewInt(42), big.NewInt(7), 1)
	badNullifier.Nullifier = big.NewInt(1)
	assert.SolvingFailed(&Circuit{}, badNullifier, test.WithCurves(ecc.BN254))

	badMessage := singleLeafAssignment(big.NewInt(42), big.NewInt(7), 300)
	assert.SolvingFailed(&Circuit{}, badMessage, test.WithCurves(ecc.BN254))
}

func TestProveVerify(t *testing.T) {
	c := qt.New(t)
	keys := setupKeys(t)
	a := singleLeafAssignment(big.NewInt(1234), big.NewInt(99), 2)
	proof, err := keys.Prove(a)
	c.Assert(err, qt.IsNil)

	public := &Circuit{Root: a.Root, Nullifier: a.Nullifier, Message: a.Message, Scope: a.Scope}
	c.Assert(keys.Verify(proof, public), qt.IsNil)

	public.Message = 3
	c.Assert(keys.Verify(proof, public), qt.IsNotNil)
	public.Message = a.Message
	public.Scope = big.NewInt(100)
	c.Assert(keys.Verify(proof, public), qt.IsNotNil)

	c.Assert(keys.Verify([]byte("garbage"), public), qt.IsNotNil)
}

func TestArtifactsRoundTrip(t *testing.T) {
	c := qt.New(t)
	keys := setupKeys(t)
	ca, err := keys.Artifacts()
	c.Assert(err, qt.IsNil)
	c.Assert(ca.StoreAll(), qt.IsNil)
	c.Assert(WriteManifest(ca), qt.IsNil)

	loaded, _, err := LoadOrSetup()
	c.Assert(err, qt.IsNil)

	a := singleLeafAssignment(big.NewInt(5), big.NewInt(6), 0)
	proof, err := loaded.Prove(a)
	c.Assert(err, qt.IsNil)
	public := &Circuit{Root: a.Root, Nullifier: a.Nullifier, Message: a.Message, Scope: a.Scope}
	c.Assert(keys.Verify(proof, public), qt.IsNil)
}
