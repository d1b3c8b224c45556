package api

import (
	"net/http"

	"github.com/vocdoni/anonpoll/log"
)

// artifactHashes lists the hashes of the membership circuit artifacts
// GET /artifacts
func (a *API) artifactHashes(w http.ResponseWriter, r *http.Request) {
	if a.artifacts == nil {
		ErrArtifactNotFound.Write(w)
		return
	}
	ccs, pk, vk := a.artifacts.Hashes()
	httpWriteJSON(w, &Artifacts{Circuit: ccs, ProvingKey: pk, VerifyingKey: vk})
}

// artifact serves the content of a circuit artifact, so clients can build
// their proofs with the keys the server verifies with
// GET /artifacts/{hash}
func (a *API) artifact(w http.ResponseWriter, r *http.Request) {
	hash, err := hexParam(r, ArtifactURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	if a.artifacts == nil {
		ErrArtifactNotFound.Write(w)
		return
	}
	content, ok := a.artifacts.ByHash(hash)
	if !ok {
		ErrArtifactNotFound.Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		log.Warnw("failed to write artifact", "error", err)
	}
}
