package membership

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// Prove generates a Groth16 proof for the full assignment and returns its
// serialized form.
func (k *Keys) Prove(assignment *Circuit) ([]byte, error) {
	if k.CCS == nil || k.PK == nil {
		return nil, fmt.Errorf("membership keys cannot prove")
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(k.CCS, k.PK, w)
	if err != nil {
		return nil, fmt.Errorf("prove membership: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public inputs of the
// assignment (only Root, Nullifier, Message and Scope are read).
func (k *Keys) Verify(proofBytes []byte, public *Circuit) error {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	w, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}
	return groth16.Verify(proof, k.VK, w)
}
