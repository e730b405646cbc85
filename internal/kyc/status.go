package kyc

import "fmt"

// Status is the on-chain request status. Values match the contract's enum ordinals.
type Status uint8

const (
	Pending Status = iota
	Declined
	Approved
	Withdrawn
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Declined:
		return "declined"
	case Approved:
		return "approved"
	case Withdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s Status) Valid() bool { return s <= Withdrawn }

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool { return s.Valid() && s != Pending }

// CanTransition reports whether a request may move from one status to another.
// Every edge leaves Pending; terminal states have no outgoing edges.
func CanTransition(from, to Status) bool {
	return from == Pending && to.Terminal()
}
