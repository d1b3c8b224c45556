package api

import "github.com/vocdoni/anonpoll/types"

// BlindPublicKey is the response of the blind public key endpoint.
type BlindPublicKey struct {
	PublicKey string `json:"publicKey"`
	Variant   string `json:"variant"`
}

// Polls is a list of polls.
type Polls struct {
	Polls []*types.Poll `json:"polls"`
}

// SignatureRequest carries a blinded message to sign, base64 encoded.
type SignatureRequest struct {
	BlindedMessage string `json:"blindedMessage"`
}

// SignatureResponse carries the blind signature, base64 encoded.
type SignatureResponse struct {
	BlindSignature string `json:"blindSignature"`
}

// VoteResponse is the result of an anonymous vote.
type VoteResponse struct {
	Status types.VoteStatus `json:"status"`
}

// NewGroup is the request to create a group.
type NewGroup struct {
	RoleID   string `json:"roleId"`
	Category string `json:"category"`
}

// Groups is a list of groups.
type Groups struct {
	Groups []*types.Group `json:"groups"`
}

// GroupMembers is the ordered slot list of a group, what clients rebuild the
// group tree from.
type GroupMembers struct {
	GroupID string            `json:"groupId"`
	Root    *types.BigInt     `json:"root"`
	Slots   []types.GroupSlot `json:"slots"`
}

// Commitment carries an identity commitment.
type Commitment struct {
	Commitment *types.BigInt `json:"commitment"`
}

// BatchIdentities is the request to create identities for several users.
type BatchIdentities struct {
	UserIDs []string `json:"userIds"`
}

// SyncResult reports the outcome of a membership sync.
type SyncResult struct {
	Added  int      `json:"added,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Artifacts lists the hashes of the membership circuit artifacts, to be
// fetched from the artifact endpoint.
type Artifacts struct {
	Circuit      types.HexBytes `json:"circuit"`
	ProvingKey   types.HexBytes `json:"provingKey"`
	VerifyingKey types.HexBytes `json:"verifyingKey"`
}
