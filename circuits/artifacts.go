// Package circuits manages the artifacts of the zkSNARK circuits used by the
// voting protocols: constraint systems, proving keys and verifying keys. The
// artifacts are cached on disk under BaseDir, content addressed by their
// sha256 hash, and can be fetched from a remote server that publishes them.
package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/vocdoni/anonpoll/config"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/types"
)

// CheckHashes determines if the hashes of the artifacts are checked when they
// are loaded or downloaded. It can be disabled with ANONPOLL_CHECK_HASHES=false.
var CheckHashes = config.CheckArtifactHashes()

// BaseDir is the path of the local artifact cache. It defaults to
// config.ArtifactsDir() and can be changed by other packages (tests).
var BaseDir = config.ArtifactsDir()

// Artifact holds the hash of a circuit artifact, its content once loaded and
// optionally the remote URL it can be downloaded from.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// NewArtifact wraps content already in memory, computing its hash.
func NewArtifact(content []byte) *Artifact {
	h := sha256.Sum256(content)
	return &Artifact{Hash: h[:], Content: content}
}

// Load reads the artifact content from the local cache if it is not loaded
// yet, checking its hash.
func (k *Artifact) Load() error {
	if len(k.Content) != 0 {
		return nil
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := load(k.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("artifact %x not found in %s", k.Hash, BaseDir)
	}
	k.Content = content
	return nil
}

// Store writes the loaded content into the local cache.
func (k *Artifact) Store() error {
	if len(k.Content) == 0 {
		return fmt.Errorf("artifact has no content")
	}
	if len(k.Hash) == 0 {
		h := sha256.Sum256(k.Content)
		k.Hash = h[:]
	}
	return store(k.Hash, k.Content)
}

// Download fetches the artifact from its remote URL, checks the hash and
// stores it in the local cache. If the artifact is already cached, it is
// just loaded.
func (k *Artifact) Download(ctx context.Context) error {
	if err := k.Load(); err == nil {
		return nil
	}
	if k.RemoteURL == "" {
		return fmt.Errorf("artifact not cached and remote url not provided")
	}
	content, err := download(ctx, k.RemoteURL)
	if err != nil {
		return err
	}
	if CheckHashes {
		got := sha256.Sum256(content)
		if !bytes.Equal(got[:], k.Hash) {
			return fmt.Errorf("hash mismatch for %s: expected %x, got %x", k.RemoteURL, k.Hash, got)
		}
	}
	k.Content = content
	return store(k.Hash, content)
}

// CircuitArtifacts holds the artifacts of a zkSNARK circuit.
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts creates a new CircuitArtifacts with the artifacts
// provided. Any of them may be nil if the holder does not need it (a
// verifier only needs the verifying key).
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// LoadAll loads the circuit artifacts from the local cache.
func (ca *CircuitArtifacts) LoadAll() error {
	if ca.circuitDefinition != nil {
		if err := ca.circuitDefinition.Load(); err != nil {
			return fmt.Errorf("error loading circuit definition: %w", err)
		}
	}
	if ca.provingKey != nil {
		if err := ca.provingKey.Load(); err != nil {
			return fmt.Errorf("error loading proving key: %w", err)
		}
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Load(); err != nil {
			return fmt.Errorf("error loading verifying key: %w", err)
		}
	}
	return nil
}

// StoreAll writes every loaded artifact into the local cache.
func (ca *CircuitArtifacts) StoreAll() error {
	for _, a := range []*Artifact{ca.circuitDefinition, ca.provingKey, ca.verifyingKey} {
		if a == nil {
			continue
		}
		if err := a.Store(); err != nil {
			return err
		}
	}
	return nil
}

// DownloadAll downloads the artifacts that have a remote URL.
func (ca *CircuitArtifacts) DownloadAll(ctx context.Context) error {
	for _, a := range []*Artifact{ca.circuitDefinition, ca.provingKey, ca.verifyingKey} {
		if a == nil {
			continue
		}
		if err := a.Download(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Hashes returns the hashes of the artifacts, the manifest a client needs to
// request them. Missing artifacts have a nil hash.
func (ca *CircuitArtifacts) Hashes() (circuit, provingKey, verifyingKey types.HexBytes) {
	get := func(a *Artifact) types.HexBytes {
		if a == nil {
			return nil
		}
		return a.Hash
	}
	return get(ca.circuitDefinition), get(ca.provingKey), get(ca.verifyingKey)
}

// CircuitDefinition returns the content of the circuit definition or nil.
func (ca *CircuitArtifacts) CircuitDefinition() types.HexBytes {
	if ca.circuitDefinition == nil {
		return nil
	}
	return ca.circuitDefinition.Content
}

// ProvingKey returns the content of the proving key or nil.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.provingKey == nil {
		return nil
	}
	return ca.provingKey.Content
}

// VerifyingKey returns the content of the verifying key or nil.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

// ByHash returns the loaded content of the artifact with the given hash.
func (ca *CircuitArtifacts) ByHash(hash []byte) ([]byte, bool) {
	for _, a := range []*Artifact{ca.circuitDefinition, ca.provingKey, ca.verifyingKey} {
		if a != nil && len(a.Content) > 0 && bytes.Equal(a.Hash, hash) {
			return a.Content, true
		}
	}
	return nil, false
}

func artifactPath(hash []byte) string {
	return filepath.Join(BaseDir, hex.EncodeToString(hash))
}

func load(hash []byte) ([]byte, error) {
	path := artifactPath(hash)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if CheckHashes {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", path, hash, fileHash)
		}
	}
	return content, nil
}

func store(hash, content []byte) error {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	path := artifactPath(hash)
	partial := path + ".partial"
	if err := os.WriteFile(partial, content, 0o644); err != nil {
		return fmt.Errorf("error writing artifact: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	log.Debugw("artifact stored", "path", path, "bytes", len(content))
	return nil
}

func download(ctx context.Context, fileURL string) ([]byte, error) {
	if _, err := url.Parse(fileURL); err != nil {
		return nil, fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating the file request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}
	log.Debugw("downloading artifact", "url", fileURL, "bytes", res.ContentLength)
	return io.ReadAll(res.Body)
}
