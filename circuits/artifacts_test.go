package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	dummyPath       = "dummy.key"
	dummyKeyContent = []byte("dummy content")
)

func testDummyKeyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, dummyPath, time.Now(), bytes.NewReader(dummyKeyContent))
	}))
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "anonpoll-artifacts")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(BaseDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestDownloadKey(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()
	expectedHash := sha256.Sum256(dummyKeyContent)
	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// not cached yet
	dummyKey := &Artifact{RemoteURL: remoteURL, Hash: expectedHash[:]}
	c.Assert(dummyKey.Load(), qt.IsNotNil)
	c.Assert(dummyKey.Download(ctx), qt.IsNil)
	c.Assert(dummyKey.Content, qt.DeepEquals, dummyKeyContent)

	// cached now, loaded without the server
	cached := &Artifact{Hash: expectedHash[:]}
	c.Assert(cached.Load(), qt.IsNil)
	c.Assert(cached.Content, qt.DeepEquals, dummyKeyContent)

	// wrong hash
	wrong := &Artifact{RemoteURL: remoteURL, Hash: []byte("wrong hash")}
	c.Assert(wrong.Download(ctx), qt.ErrorMatches, "hash mismatch.*")
}

func TestDownloadAll(t *testing.T) {
	c := qt.New(t)
	published := map[string][]byte{}
	remote := NewCircuitArtifacts(
		NewArtifact([]byte("remote ccs")), NewArtifact([]byte("remote pk")), NewArtifact([]byte("remote vk")))
	for _, content := range [][]byte{remote.CircuitDefinition(), remote.ProvingKey(), remote.VerifyingKey()} {
		h := sha256.Sum256(content)
		published[hex.EncodeToString(h[:])] = content
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := published[path.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(content)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fetch := func(hash []byte) *Artifact {
		u, err := url.JoinPath(server.URL, "artifacts", hex.EncodeToString(hash))
		c.Assert(err, qt.IsNil)
		return &Artifact{Hash: hash, RemoteURL: u}
	}
	ccsHash, pkHash, vkHash := remote.Hashes()
	downloaded := NewCircuitArtifacts(fetch(ccsHash), fetch(pkHash), fetch(vkHash))
	c.Assert(downloaded.DownloadAll(ctx), qt.IsNil)
	c.Assert([]byte(downloaded.CircuitDefinition()), qt.DeepEquals, []byte("remote ccs"))
	c.Assert([]byte(downloaded.ProvingKey()), qt.DeepEquals, []byte("remote pk"))
	c.Assert([]byte(downloaded.VerifyingKey()), qt.DeepEquals, []byte("remote vk"))

	// a server answering with other content for a hash is refused
	other := sha256.Sum256([]byte("not published"))
	published[hex.EncodeToString(other[:])] = []byte("forged")
	forged := NewCircuitArtifacts(nil, fetch(other[:]), nil)
	c.Assert(forged.DownloadAll(ctx), qt.ErrorMatches, "hash mismatch.*")

	// unknown hashes are not found
	missing := sha256.Sum256([]byte("missing"))
	c.Assert(NewCircuitArtifacts(nil, nil, fetch(missing[:])).DownloadAll(ctx), qt.ErrorMatches, ".*http status: 404")
}

func TestStoreAndLoadAll(t *testing.T) {
	c := qt.New(t)
	ca := NewCircuitArtifacts(NewArtifact([]byte("ccs")), NewArtifact([]byte("pk")), NewArtifact([]byte("vk")))
	c.Assert(ca.StoreAll(), qt.IsNil)

	ccsHash, pkHash, vkHash := ca.Hashes()
	loaded := NewCircuitArtifacts(&Artifact{Hash: ccsHash}, &Artifact{Hash: pkHash}, &Artifact{Hash: vkHash})
	c.Assert(loaded.LoadAll(), qt.IsNil)
	c.Assert([]byte(loaded.ProvingKey()), qt.DeepEquals, []byte("pk"))
	c.Assert([]byte(loaded.VerifyingKey()), qt.DeepEquals, []byte("vk"))

	content, ok := loaded.ByHash(ccsHash)
	c.Assert(ok, qt.IsTrue)
	c.Assert(content, qt.DeepEquals, []byte("ccs"))
	_, ok = loaded.ByHash([]byte{1, 2, 3})
	c.Assert(ok, qt.IsFalse)

	// corrupt a cached file
	c.Assert(os.WriteFile(artifactPath(vkHash), []byte("tampered"), 0o644), qt.IsNil)
	c.Assert((&Artifact{Hash: vkHash}).Load(), qt.ErrorMatches, "hash mismatch.*")
}
