package membership

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/types"
)

// manifestName is the file, inside circuits.BaseDir, that records the hashes
// of the current membership artifacts.
const manifestName = "membership.json"

// Manifest lists the hashes of the membership circuit artifacts.
type Manifest struct {
	Circuit      types.HexBytes `json:"circuit"`
	ProvingKey   types.HexBytes `json:"provingKey"`
	VerifyingKey types.HexBytes `json:"verifyingKey"`
}

// Keys holds the compiled circuit and its Groth16 keys. A verifier only needs
// VK; a prover needs CCS and PK.
type Keys struct {
	CCS constraint.ConstraintSystem
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
}

// Compile compiles the membership circuit over the BN254 scalar field.
func Compile() (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &Circuit{})
	if err != nil {
		return nil, fmt.Errorf("compile membership circuit: %w", err)
	}
	return ccs, nil
}

// Setup compiles the circuit and runs a local Groth16 setup.
func Setup() (*Keys, error) {
	start := time.Now()
	ccs, err := Compile()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	log.Infow("membership circuit setup done",
		"constraints", ccs.GetNbConstraints(),
		"took", time.Since(start).String())
	return &Keys{CCS: ccs, PK: pk, VK: vk}, nil
}

// Artifacts serializes the keys into circuit artifacts.
func (k *Keys) Artifacts() (*circuits.CircuitArtifacts, error) {
	var ccsBuf, pkBuf, vkBuf bytes.Buffer
	if _, err := k.CCS.WriteTo(&ccsBuf); err != nil {
		return nil, fmt.Errorf("write circuit definition: %w", err)
	}
	if _, err := k.PK.WriteTo(&pkBuf); err != nil {
		return nil, fmt.Errorf("write proving key: %w", err)
	}
	if _, err := k.VK.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("write verifying key: %w", err)
	}
	return circuits.NewCircuitArtifacts(
		circuits.NewArtifact(ccsBuf.Bytes()),
		circuits.NewArtifact(pkBuf.Bytes()),
		circuits.NewArtifact(vkBuf.Bytes()),
	), nil
}

// LoadKeys decodes the keys from loaded artifacts. Missing artifacts leave the
// corresponding field nil.
func LoadKeys(ca *circuits.CircuitArtifacts) (*Keys, error) {
	k := &Keys{}
	if b := ca.CircuitDefinition(); len(b) > 0 {
		k.CCS = groth16.NewCS(ecc.BN254)
		if _, err := k.CCS.ReadFrom(bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("failed to read membership circuit definition: %w", err)
		}
	}
	if b := ca.ProvingKey(); len(b) > 0 {
		k.PK = groth16.NewProvingKey(ecc.BN254)
		if _, err := k.PK.ReadFrom(bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("failed to read membership proving key: %w", err)
		}
	}
	vk := ca.VerifyingKey()
	if len(vk) == 0 {
		return nil, fmt.Errorf("missing membership verifying key")
	}
	k.VK = groth16.NewVerifyingKey(ecc.BN254)
	if _, err := k.VK.ReadFrom(bytes.NewReader(vk)); err != nil {
		return nil, fmt.Errorf("failed to read membership verifying key: %w", err)
	}
	return k, nil
}

// LoadOrSetup loads the membership keys from the artifact cache, running the
// setup and storing its artifacts when no manifest is found.
func LoadOrSetup() (*Keys, *circuits.CircuitArtifacts, error) {
	m, err := ReadManifest()
	if err == nil {
		ca := circuits.NewCircuitArtifacts(
			&circuits.Artifact{Hash: m.Circuit},
			&circuits.Artifact{Hash: m.ProvingKey},
			&circuits.Artifact{Hash: m.VerifyingKey},
		)
		if err := ca.LoadAll(); err != nil {
			return nil, nil, err
		}
		keys, err := LoadKeys(ca)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("membership artifacts loaded", "verifyingKey", m.VerifyingKey.String())
		return keys, ca, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	keys, err := Setup()
	if err != nil {
		return nil, nil, err
	}
	ca, err := keys.Artifacts()
	if err != nil {
		return nil, nil, err
	}
	if err := ca.StoreAll(); err != nil {
		return nil, nil, err
	}
	if err := WriteManifest(ca); err != nil {
		return nil, nil, err
	}
	return keys, ca, nil
}

// ReadManifest reads the manifest from circuits.BaseDir.
func ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(circuits.BaseDir, manifestName))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode membership manifest: %w", err)
	}
	return m, nil
}

// WriteManifest records the hashes of ca in circuits.BaseDir.
func WriteManifest(ca *circuits.CircuitArtifacts) error {
	ccs, pk, vk := ca.Hashes()
	data, err := json.Marshal(&Manifest{Circuit: ccs, ProvingKey: pk, VerifyingKey: vk})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(circuits.BaseDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(circuits.BaseDir, manifestName), data, 0o644)
}
