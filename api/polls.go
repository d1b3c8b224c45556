package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/voting"
)

// newPoll creates a DRAFT poll
// POST /polls
func (a *API) newPoll(w http.ResponseWriter, r *http.Request) {
	setup := &voting.PollSetup{}
	if !decodeBody(w, r, setup) {
		return
	}
	p, err := a.svc.CreatePoll(r.Context(), userID(r), setup)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	log.Infow("new poll", "pollId", p.ID, "kind", p.Kind, "createdBy", p.CreatedBy)
	httpWriteJSON(w, p)
}

// polls lists every poll
// GET /polls
func (a *API) polls(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListPolls(r.Context())
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &Polls{Polls: list})
}

// poll returns a poll, with its results once closed
// GET /polls/{pollId}
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.GetPoll(r.Context(), chi.URLParam(r, PollURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}

// openPoll moves a poll from DRAFT to OPEN
// POST /polls/{pollId}/open
func (a *API) openPoll(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.OpenPoll(r.Context(), userID(r), chi.URLParam(r, PollURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}

// closePoll moves a poll from OPEN to CLOSED and publishes its results
// POST /polls/{pollId}/close
func (a *API) closePoll(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.ClosePoll(r.Context(), userID(r), chi.URLParam(r, PollURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}
