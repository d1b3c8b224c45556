package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/semaphore"
	"github.com/vocdoni/anonpoll/voting"
)

// blindPublicKey publishes the key that verifies the blind signatures
// GET /blind/pubkey
func (a *API) blindPublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := a.svc.PublicKeyPEM()
	if err != nil {
		ErrGenericInternalServerError.Write(w)
		return
	}
	httpWriteJSON(w, &BlindPublicKey{PublicKey: string(pem), Variant: blindrsa.VariantName})
}

// requestSignature blind-signs a token for the authenticated user
// POST /polls/{pollId}/signature
func (a *API) requestSignature(w http.ResponseWriter, r *http.Request) {
	req := &SignatureRequest{}
	if !decodeBody(w, r, req) {
		return
	}
	blinded, err := blindrsa.Decode(req.BlindedMessage)
	if err != nil || len(blinded) == 0 {
		ErrMalformedBody.With("invalid blinded message").Write(w)
		return
	}
	sig, err := a.svc.RequestSignature(r.Context(), userID(r), chi.URLParam(r, PollURLParam), blinded)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &SignatureResponse{BlindSignature: blindrsa.Encode(sig)})
}

// redeemVote counts an anonymous blind-token vote. The user header is never
// read here.
// POST /polls/{pollId}/redeem
func (a *API) redeemVote(w http.ResponseWriter, r *http.Request) {
	red := &voting.Redemption{}
	if !decodeBody(w, r, red) {
		return
	}
	red.PollID = chi.URLParam(r, PollURLParam)
	if err := a.svc.RedeemVote(r.Context(), red); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// castVote counts an anonymous semaphore vote
// POST /polls/{pollId}/votes
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	proof := &semaphore.Proof{}
	if !decodeBody(w, r, proof) {
		return
	}
	status, err := a.svc.CastVote(r.Context(), chi.URLParam(r, PollURLParam), proof)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{Status: status})
}

// voteStatus returns the status of a nullifier
// GET /polls/{pollId}/votes/{key}
func (a *API) voteStatus(w http.ResponseWriter, r *http.Request) {
	nullifier, err := bigIntParam(r, ReceiptURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	status, err := a.svc.VoteStatus(r.Context(), chi.URLParam(r, PollURLParam), nullifier)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{Status: status})
}

// receipt returns the inclusion proof of an accepted vote. The key is the
// hex nullifier (32 bytes big endian) or the hex token hash.
// GET /polls/{pollId}/receipts/{key}
func (a *API) receipt(w http.ResponseWriter, r *http.Request) {
	key, err := hexParam(r, ReceiptURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	rc, err := a.svc.Receipt(r.Context(), chi.URLParam(r, PollURLParam), key)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, rc)
}
