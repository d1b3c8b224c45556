package api

const (
	// UserIDHeader carries the id of the authenticated user. It is set by the
	// upstream session layer; requests without it are anonymous.
	UserIDHeader = "X-User-ID"

	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// BlindPublicKeyEndpoint publishes the blind signature public key
	BlindPublicKeyEndpoint = "/blind/pubkey"

	PollURLParam       = "pollId"
	GroupURLParam      = "groupId"
	CommitmentURLParam = "commitment"
	ReceiptURLParam    = "key"
	ArtifactURLParam   = "hash"

	// PollsEndpoint creates and lists polls
	PollsEndpoint = "/polls"
	// PollEndpoint returns a poll
	PollEndpoint = "/polls/{" + PollURLParam + "}"
	// OpenPollEndpoint and ClosePollEndpoint move a poll through its lifecycle
	OpenPollEndpoint  = PollEndpoint + "/open"
	ClosePollEndpoint = PollEndpoint + "/close"
	// SignatureEndpoint blind-signs a token for the authenticated user
	SignatureEndpoint = PollEndpoint + "/signature"
	// RedeemEndpoint receives anonymous blind-token votes
	RedeemEndpoint = PollEndpoint + "/redeem"
	// VotesEndpoint receives anonymous semaphore votes
	VotesEndpoint = PollEndpoint + "/votes"
	// VoteStatusEndpoint returns the status of a nullifier
	VoteStatusEndpoint = VotesEndpoint + "/{" + ReceiptURLParam + "}"
	// ReceiptEndpoint returns the inclusion proof of an accepted vote
	ReceiptEndpoint = PollEndpoint + "/receipts/{" + ReceiptURLParam + "}"

	// GroupsEndpoint creates and lists groups
	GroupsEndpoint = "/groups"
	// GroupEndpoint returns a group
	GroupEndpoint = "/groups/{" + GroupURLParam + "}"
	// GroupMembersEndpoint lists the slots of a group and joins it
	GroupMembersEndpoint = GroupEndpoint + "/members"
	// GroupMemberEndpoint removes a member
	GroupMemberEndpoint = GroupMembersEndpoint + "/{" + CommitmentURLParam + "}"
	// GroupSyncEndpoint adds the eligible registered users to a group
	GroupSyncEndpoint = GroupEndpoint + "/sync"

	// IdentitiesEndpoint registers the identity commitment of the user
	IdentitiesEndpoint = "/identities"
	// BatchIdentitiesEndpoint is reserved for batch identity creation
	BatchIdentitiesEndpoint = "/identities/batch"
	// UserSyncEndpoint adds the authenticated user to the groups of their roles
	UserSyncEndpoint = "/users/sync"

	// ArtifactsEndpoint lists the membership circuit artifact hashes
	ArtifactsEndpoint = "/artifacts"
	// ArtifactEndpoint serves a circuit artifact by hash
	ArtifactEndpoint = "/artifacts/{" + ArtifactURLParam + "}"
)
