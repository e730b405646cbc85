package contracts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	FeeABIFile    = "FeeContract.abi"
	KYCABIFile    = "KYCContract.abi"
	FilterABIFile = "FilterContract.abi"
)

var ErrInvalidABI = errors.New("contracts: invalid abi")

//go:embed abi/*.abi
var embeddedFS embed.FS

// ABIs holds the parsed interface of each predeployed contract.
type ABIs struct {
	Fee    abi.ABI
	KYC    abi.ABI
	Filter abi.ABI
}

var (
	embeddedOnce sync.Once
	embeddedABIs ABIs
	embeddedErr  error
)

// EmbeddedABIs returns the ABIs compiled into the binary. They are parsed once.
func EmbeddedABIs() (ABIs, error) {
	embeddedOnce.Do(func() {
		sub, err := fs.Sub(embeddedFS, "abi")
		if err != nil {
			embeddedErr = err
			return
		}
		embeddedABIs, embeddedErr = loadABIs(sub)
	})
	return embeddedABIs, embeddedErr
}

// LoadABIDir reads FeeContract.abi, KYCContract.abi and FilterContract.abi from dir.
func LoadABIDir(dir string) (ABIs, error) {
	if dir == "" {
		return ABIs{}, fmt.Errorf("%w: empty dir", ErrInvalidABI)
	}
	return loadABIs(os.DirFS(dir))
}

func loadABIs(fsys fs.FS) (ABIs, error) {
	var out ABIs
	for _, f := range []struct {
		name string
		dst  *abi.ABI
	}{
		{FeeABIFile, &out.Fee},
		{KYCABIFile, &out.KYC},
		{FilterABIFile, &out.Filter},
	} {
		b, err := fs.ReadFile(fsys, f.name)
		if err != nil {
			return ABIs{}, fmt.Errorf("%w: read %s: %v", ErrInvalidABI, f.name, err)
		}
		parsed, err := abi.JSON(bytes.NewReader(b))
		if err != nil {
			return ABIs{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidABI, f.name, err)
		}
		*f.dst = parsed
	}
	if err := out.check(); err != nil {
		return ABIs{}, err
	}
	return out, nil
}

var requiredMethods = map[string][]string{
	FeeABIFile: {"pay", "paidFee", "initialFee", "changeFee", "owner", "transferOwnership", "renounceOwnership"},
	KYCABIFile: {
		"createKYCRequest", "approveKYCRequest", "declineRequest", "repairLostRequest", "decreaseKYCLevel",
		"setLevelPrice", "levelPrices", "level", "payments", "withdrawPayments", "viewMyRequest",
		"viewRequestAssignedToCentre", "userKYCRequests", "getLastGlobalRequestIndexOfAddress",
		"grantRole", "revokeRole", "renounceRole", "hasRole", "getRoleAdmin", "getRoleMember", "getRoleMemberCount",
	},
	FilterABIFile: {"setFilterLevel", "viewFilterLevel", "filter"},
}

// check fails fast when an ABI on disk lacks a method the proxies call.
func (a ABIs) check() error {
	for file, parsed := range map[string]abi.ABI{FeeABIFile: a.Fee, KYCABIFile: a.KYC, FilterABIFile: a.Filter} {
		for _, m := range requiredMethods[file] {
			if _, ok := parsed.Methods[m]; !ok {
				return fmt.Errorf("%w: %s has no method %q", ErrInvalidABI, file, m)
			}
		}
	}
	return nil
}
