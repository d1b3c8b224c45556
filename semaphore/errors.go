package semaphore

import "errors"

var (
	// ErrMemberExists is returned when adding a commitment already in the group.
	ErrMemberExists = errors.New("member already in group")
	// ErrMemberNotFound is returned when the commitment is not an active member.
	ErrMemberNotFound = errors.New("member not found")
	// ErrGroupFull is returned when every slot of the tree is taken.
	ErrGroupFull = errors.New("group is full")
	// ErrInvalidCommitment is returned for zero or out of field commitments.
	ErrInvalidCommitment = errors.New("invalid commitment")
	// ErrInvalidIdentity is returned for invalid secrets or seeds.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidProof is returned when a proof does not verify.
	ErrInvalidProof = errors.New("invalid proof")
)
