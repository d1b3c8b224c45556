package types

// PollStatus is the lifecycle state of a poll.
type PollStatus string

const (
	PollDraft  PollStatus = "DRAFT"
	PollOpen   PollStatus = "OPEN"
	PollClosed PollStatus = "CLOSED"
)

// PollKind selects the anonymous voting protocol of a poll.
type PollKind string

const (
	KindBlindToken PollKind = "blind-token"
	KindSemaphore  PollKind = "semaphore"
)

// VerificationMode selects when semaphore proofs are verified.
type VerificationMode string

const (
	// ModeImmediate verifies the proof inside the cast request.
	ModeImmediate VerificationMode = "immediate"
	// ModeDeferred records the vote as PENDING and verifies it in background.
	ModeDeferred VerificationMode = "deferred"
)

// VoteStatus is the state of a nullifier record.
type VoteStatus string

const (
	VotePending  VoteStatus = "PENDING"
	VoteVerified VoteStatus = "VERIFIED"
	VoteRejected VoteStatus = "REJECTED"
)
