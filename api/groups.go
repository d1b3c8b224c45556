package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// newGroup creates the group of a role within a category, or returns the
// existing one
// POST /groups
func (a *API) newGroup(w http.ResponseWriter, r *http.Request) {
	req := &NewGroup{}
	if !decodeBody(w, r, req) {
		return
	}
	g, err := a.svc.CreateGroup(r.Context(), userID(r), req.RoleID, req.Category)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, g)
}

// groups lists every group
// GET /groups
func (a *API) groups(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListGroups(r.Context())
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &Groups{Groups: list})
}

// group returns a group
// GET /groups/{groupId}
func (a *API) group(w http.ResponseWriter, r *http.Request) {
	g, err := a.svc.GetGroup(r.Context(), chi.URLParam(r, GroupURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, g)
}

// groupMembers returns the ordered slots of a group
// GET /groups/{groupId}/members
func (a *API) groupMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, GroupURLParam)
	g, err := a.svc.GetGroup(r.Context(), groupID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	slots, err := a.svc.GroupMembers(r.Context(), groupID)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	// the user ids link identities to people, only commitments are public
	for i := range slots {
		slots[i].UserID = ""
	}
	httpWriteJSON(w, &GroupMembers{GroupID: g.ID, Root: g.Root, Slots: slots})
}

// joinGroup adds the commitment of the authenticated user to a group
// POST /groups/{groupId}/members
func (a *API) joinGroup(w http.ResponseWriter, r *http.Request) {
	req := &Commitment{}
	if !decodeBody(w, r, req) {
		return
	}
	m, err := a.svc.JoinGroup(r.Context(), chi.URLParam(r, GroupURLParam), req.Commitment, userID(r))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, m)
}

// removeMember tombstones a member of a group
// DELETE /groups/{groupId}/members/{commitment}
func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	commitment, err := bigIntParam(r, CommitmentURLParam)
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	}
	m, err := a.svc.RemoveMember(r.Context(), userID(r), chi.URLParam(r, GroupURLParam), commitment)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, m)
}

// syncGroup adds the eligible registered users to a group
// POST /groups/{groupId}/sync
func (a *API) syncGroup(w http.ResponseWriter, r *http.Request) {
	added, err := a.svc.SyncGroupMembers(r.Context(), userID(r), chi.URLParam(r, GroupURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &SyncResult{Added: added})
}

// registerCommitment publishes the identity commitment of the user
// POST /identities
func (a *API) registerCommitment(w http.ResponseWriter, r *http.Request) {
	req := &Commitment{}
	if !decodeBody(w, r, req) {
		return
	}
	if err := a.svc.RegisterCommitment(r.Context(), userID(r), req.Commitment); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// batchIdentities is not supported, identities are created by their owners
// POST /identities/batch
func (a *API) batchIdentities(w http.ResponseWriter, r *http.Request) {
	req := &BatchIdentities{}
	if !decodeBody(w, r, req) {
		return
	}
	if _, err := a.svc.BatchCreateIdentities(r.Context(), userID(r), req.UserIDs); err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// syncUser adds the authenticated user to the groups of their roles
// POST /users/sync
func (a *API) syncUser(w http.ResponseWriter, r *http.Request) {
	joined, err := a.svc.SyncUserToGroups(r.Context(), userID(r))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &SyncResult{Groups: joined})
}
