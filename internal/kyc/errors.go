package kyc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Revert reasons as emitted by the deployed contracts.
const (
	ReasonNotEnoughEther    = "Provided not enough Ether."
	ReasonPending           = "Your previous request is still pending answer"
	ReasonHaveLevel         = "You already have this KYC level"
	ReasonNoCentres         = "There are no kyc centres"
	ReasonNotAllowedApprove = "Not allowed to approve"
	ReasonNotAllowedDecline = "Not allowed to decline"
	ReasonNotAllowedSet     = "Not allowed to set level"
	ReasonNotPending        = "This request is not pending decision"
	ReasonCentreActive      = "Your KYC centre is still active"
	ReasonCannotRepair      = "Your last request cannot be repaired"
	ReasonOnlyDecrease      = "You can only decrease level"
	ReasonRenounceSelf      = "AccessControl: can only renounce roles for self"
)

const executionReverted = "execution reverted"

// RevertError is a predicted contract revert. Error returns the text a node reports for the same
// failure, so predictions compare directly against eth.Reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return executionReverted
	}
	return executionReverted + ": " + e.Reason
}

func revert(reason string) error { return &RevertError{Reason: reason} }

// bare is a revert without a reason string (require without message, array bounds, ...).
func bare() error { return &RevertError{} }

// MissingRoleReason is the AccessControl message for account lacking role, lowercased as the
// contract renders it.
func MissingRoleReason(account common.Address, role common.Hash) string {
	return fmt.Sprintf("AccessControl: account %s is missing role %s",
		strings.ToLower(account.Hex()), role.Hex())
}

// IsRevert reports whether err is a predicted revert, optionally with the given reason.
func IsRevert(err error, reason string) bool {
	var rerr *RevertError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.Reason == reason
}
