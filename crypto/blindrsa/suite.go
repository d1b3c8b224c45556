// Package blindrsa wraps the RSA blind signature protocol (RFC 9474) with
// the RSABSSA-SHA384-PSS-Randomized variant used by blind-token polls.
//
// A Suite is constructed explicitly with its key material and randomness
// source, so a server holds a signing Suite and a voter holds a client Suite
// built from the published public key.
package blindrsa

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/cloudflare/circl/blindsign/blindrsa"
)

// VariantName is the interoperability identifier of the blind signature
// suite. Changing hash or padding breaks verification between peers.
const VariantName = "RSABSSA-SHA384-PSS-Randomized"

// PrefixSize is the size of the random prefix that the randomized variant
// prepends to every message during preparation.
const PrefixSize = 32

// MinKeyBits is the smallest RSA modulus accepted by the suite.
const MinKeyBits = 2048

var variant = blindrsa.SHA384PSSRandomized

// Suite bundles the key material and primitives of the blind signature
// protocol. The zero value is not usable, use NewSigner or NewClient.
type Suite struct {
	pub      *rsa.PublicKey
	priv     *rsa.PrivateKey
	random   io.Reader
	client   blindrsa.Client
	verifier blindrsa.Verifier
}

// Option configures a Suite.
type Option func(*Suite)

// WithRandom sets the randomness source used by Prepare and Blind. It
// defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(s *Suite) {
		s.random = r
	}
}

// BlindState is the client-side secret produced by Blind. It holds the
// inverse of the blinding factor and must never leave the client.
type BlindState struct {
	state blindrsa.State
}

// NewSigner returns a Suite able to blind-sign, besides every client side
// operation.
func NewSigner(sk *rsa.PrivateKey, opts ...Option) (*Suite, error) {
	if sk == nil {
		return nil, fmt.Errorf("nil private key")
	}
	s, err := newSuite(&sk.PublicKey, opts...)
	if err != nil {
		return nil, err
	}
	s.priv = sk
	return s, nil
}

// NewClient returns a Suite for the voter side: prepare, blind, finalize and
// verify against the published public key.
func NewClient(pk *rsa.PublicKey, opts ...Option) (*Suite, error) {
	return newSuite(pk, opts...)
}

func newSuite(pk *rsa.PublicKey, opts ...Option) (*Suite, error) {
	if pk == nil {
		return nil, fmt.Errorf("nil public key")
	}
	if pk.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("rsa key too small: %d bits", pk.N.BitLen())
	}
	s := &Suite{pub: pk, random: rand.Reader}
	for _, o := range opts {
		o(s)
	}
	var err error
	if s.client, err = blindrsa.NewClient(variant, pk); err != nil {
		return nil, fmt.Errorf("blind rsa client: %w", err)
	}
	if s.verifier, err = blindrsa.NewVerifier(variant, pk); err != nil {
		return nil, fmt.Errorf("blind rsa verifier: %w", err)
	}
	return s, nil
}

// PublicKey returns the public key of the suite.
func (s *Suite) PublicKey() *rsa.PublicKey {
	return s.pub
}

// CanSign reports whether the suite holds the private key.
func (s *Suite) CanSign() bool {
	return s.priv != nil
}

// Prepare encodes msg for blinding. The randomized variant prepends
// PrefixSize random bytes, and the prepared bytes are what gets signed and
// later verified.
func (s *Suite) Prepare(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	return s.client.Prepare(s.random, msg)
}

// Blind blinds a prepared message. Each call yields a different blinded
// output for the same input.
func (s *Suite) Blind(prepared []byte) ([]byte, *BlindState, error) {
	blinded, state, err := s.client.Blind(s.random, prepared)
	if err != nil {
		return nil, nil, fmt.Errorf("blind: %w", err)
	}
	return blinded, &BlindState{state: state}, nil
}

// BlindSign signs a blinded message. The signer never learns the message.
func (s *Suite) BlindSign(blinded []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("suite has no private key")
	}
	if len(blinded) != s.keySize() {
		return nil, fmt.Errorf("unexpected blinded message size %d", len(blinded))
	}
	sig, err := blindrsa.NewSigner(s.priv).BlindSign(blinded)
	if err != nil {
		return nil, fmt.Errorf("blind sign: %w", err)
	}
	return sig, nil
}

// Finalize unblinds a blind signature with the state kept by the client. The
// resulting signature verifies against the prepared message.
func (s *Suite) Finalize(state *BlindState, blindSig []byte) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("nil blind state")
	}
	sig, err := s.client.Finalize(state.state, blindSig)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return sig, nil
}

// Verify checks signature over the prepared message. It never panics and
// returns false on any malformed input.
func (s *Suite) Verify(signature, prepared []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if len(signature) != s.keySize() || len(prepared) <= PrefixSize {
		return false
	}
	return s.verifier.Verify(prepared, signature) == nil
}

func (s *Suite) keySize() int {
	return (s.pub.N.BitLen() + 7) / 8
}
