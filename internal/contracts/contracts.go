// Package contracts binds the three predeployed system contracts.
//
// Every state-changing method has a pure BuildX that only encodes calldata and an X that hands
// the result to a Submitter. Views go straight to eth_call and never touch the Submitter.
package contracts

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

// Genesis addresses. These are part of the chain's wire contract and never move.
var (
	FeeAddress    = common.HexToAddress("0x0000000000000000000000000000000000001000")
	KYCAddress    = common.HexToAddress("0x0000000000000000000000000000000000001001")
	FilterAddress = common.HexToAddress("0x0000000000000000000000000000000000001002")

	// GenesisFeeOwner owns the fee contract in the genesis allocation.
	GenesisFeeOwner = common.HexToAddress("0x0000000000000000000000000000000000001007")
)

var (
	KYCCentreRole    = kyc.CentreRole
	DefaultAdminRole = kyc.AdminRole
)

// Set groups the proxies of one chain.
type Set struct {
	Fee    *Fee
	KYC    *KYC
	Filter *Filter
}

// Bind builds proxies for the genesis addresses. sub may be nil for a read-only set.
func Bind(abis ABIs, caller Caller, sub Submitter) Set {
	return Set{
		Fee:    NewFee(FeeAddress, abis.Fee, caller, sub),
		KYC:    NewKYC(KYCAddress, abis.KYC, caller, sub),
		Filter: NewFilter(FilterAddress, abis.Filter, caller, sub),
	}
}
