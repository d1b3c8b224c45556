package types

import (
	"encoding/json"
	"time"
)

// Option is one of the choices of a poll, addressed by its index.
type Option struct {
	Index int    `json:"index" cbor:"0,keyasint"`
	Label string `json:"label" cbor:"1,keyasint,omitempty"`
}

// Poll is a question with a list of options voted with one of the anonymous
// protocols. Results is only filled for closed polls.
type Poll struct {
	ID           string           `json:"id"                     cbor:"0,keyasint,omitempty"`
	Question     string           `json:"question"               cbor:"1,keyasint,omitempty"`
	Options      []Option         `json:"options"                cbor:"2,keyasint,omitempty"`
	Kind         PollKind         `json:"kind"                   cbor:"3,keyasint,omitempty"`
	Mode         VerificationMode `json:"mode,omitempty"         cbor:"4,keyasint,omitempty"`
	Category     string           `json:"category,omitempty"     cbor:"5,keyasint,omitempty"`
	RequiredRole string           `json:"requiredRole,omitempty" cbor:"6,keyasint,omitempty"`
	GroupID      string           `json:"groupId,omitempty"      cbor:"7,keyasint,omitempty"`
	GroupRoot    *BigInt          `json:"groupRoot,omitempty"    cbor:"8,keyasint,omitempty"`
	Status       PollStatus       `json:"status"                 cbor:"9,keyasint,omitempty"`
	CreatedBy    string           `json:"createdBy,omitempty"    cbor:"10,keyasint,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"              cbor:"11,keyasint,omitempty"`
	CloseTime    *time.Time       `json:"closeTime,omitempty"    cbor:"12,keyasint,omitempty"`
	ClosedAt     *time.Time       `json:"closedAt,omitempty"     cbor:"13,keyasint,omitempty"`
	ResultsHash  *BigInt          `json:"resultsHash,omitempty"  cbor:"14,keyasint,omitempty"`
	Results      []uint64         `json:"results,omitempty"      cbor:"-"`
}

// HasOption reports whether i is the index of one of the options.
func (p *Poll) HasOption(i int) bool {
	return i >= 0 && i < len(p.Options)
}

// Expired reports whether the poll has a close time before now.
func (p *Poll) Expired(now time.Time) bool {
	return p.CloseTime != nil && !now.Before(*p.CloseTime)
}

func (p *Poll) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// Group is a semaphore group: the identity commitments of the members of an
// external role within a category.
type Group struct {
	ID        string    `json:"id"        cbor:"0,keyasint,omitempty"`
	RoleID    string    `json:"roleId"    cbor:"1,keyasint,omitempty"`
	Category  string    `json:"category"  cbor:"2,keyasint,omitempty"`
	Root      *BigInt   `json:"root"      cbor:"3,keyasint,omitempty"`
	Size      int       `json:"size"      cbor:"4,keyasint,omitempty"`
	Slots     int       `json:"slots"     cbor:"5,keyasint,omitempty"`
	CreatedAt time.Time `json:"createdAt" cbor:"6,keyasint,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" cbor:"7,keyasint,omitempty"`
}

// GroupSlot is a position of the group tree. A removed member leaves a zero
// commitment.
type GroupSlot struct {
	Index      int     `json:"index"            cbor:"0,keyasint"`
	Commitment *BigInt `json:"commitment"       cbor:"1,keyasint,omitempty"`
	UserID     string  `json:"userId,omitempty" cbor:"2,keyasint,omitempty"`
}

// Removed reports whether the slot is a tombstone.
func (s *GroupSlot) Removed() bool {
	return s.Commitment.IsZero()
}

// NullifierRecord marks that a nullifier has been used in a poll.
type NullifierRecord struct {
	PollID    string     `json:"pollId"    cbor:"0,keyasint,omitempty"`
	Nullifier *BigInt    `json:"nullifier" cbor:"1,keyasint,omitempty"`
	Option    int        `json:"option"    cbor:"2,keyasint"`
	Status    VoteStatus `json:"status"    cbor:"3,keyasint,omitempty"`
	CreatedAt time.Time  `json:"createdAt" cbor:"4,keyasint,omitempty"`
}

// Receipt is the inclusion proof of an accepted vote in the receipt tree of
// a poll.
type Receipt struct {
	PollID   string   `json:"pollId"`
	Root     HexBytes `json:"root"`
	Key      HexBytes `json:"key"`
	Value    HexBytes `json:"value"`
	Siblings HexBytes `json:"siblings"`
}
