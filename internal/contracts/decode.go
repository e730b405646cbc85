package contracts

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"

	"github.com/carbontec-pub-org/contract-tests/internal/kyc"
)

// requestFields is the wire order of the KYCRequest tuple. Decoding is positional; field names
// in the ABI are not consulted.
var requestFields = [...]string{"requester", "data", "level", "status", "centre", "deposit"}

// DecodeRequest converts an unpacked KYCRequest tuple into a kyc.Request. It accepts the
// anonymous struct produced by abi unpacking or a []any in wire order.
func DecodeRequest(tuple any) (kyc.Request, error) {
	vals, err := tupleValues(tuple)
	if err != nil {
		return kyc.Request{}, err
	}

	var out kyc.Request
	if out.Requester, err = asAddress(requestFields[0], vals[0]); err != nil {
		return kyc.Request{}, err
	}
	if out.Data, err = asHash(requestFields[1], vals[1]); err != nil {
		return kyc.Request{}, err
	}
	if out.Level, err = asUint64(requestFields[2], vals[2]); err != nil {
		return kyc.Request{}, err
	}
	status, err := asUint64(requestFields[3], vals[3])
	if err != nil {
		return kyc.Request{}, err
	}
	if status > uint64(kyc.Withdrawn) {
		return kyc.Request{}, fmt.Errorf("%w: status %d", ErrUnexpectedResult, status)
	}
	out.Status = kyc.Status(status)
	if out.Centre, err = asAddress(requestFields[4], vals[4]); err != nil {
		return kyc.Request{}, err
	}
	if out.Deposit, err = asBig(requestFields[5], vals[5]); err != nil {
		return kyc.Request{}, err
	}
	return out, nil
}

func tupleValues(tuple any) ([]any, error) {
	if vals, ok := tuple.([]any); ok {
		if len(vals) != len(requestFields) {
			return nil, fmt.Errorf("%w: request tuple has %d fields, want %d", ErrUnexpectedResult, len(vals), len(requestFields))
		}
		return vals, nil
	}
	rv := reflect.ValueOf(tuple)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: request tuple is %T", ErrUnexpectedResult, tuple)
	}
	if rv.NumField() != len(requestFields) {
		return nil, fmt.Errorf("%w: request tuple has %d fields, want %d", ErrUnexpectedResult, rv.NumField(), len(requestFields))
	}
	vals := make([]any, rv.NumField())
	for i := range vals {
		f := rv.Field(i)
		if !f.CanInterface() {
			return nil, fmt.Errorf("%w: request field %d is unexported", ErrUnexpectedResult, i)
		}
		vals[i] = f.Interface()
	}
	return vals, nil
}

func asAddress(field string, v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case [20]byte:
		return common.Address(a), nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s type %T", ErrUnexpectedResult, field, v)
	}
}

func asHash(field string, v any) (common.Hash, error) {
	switch h := v.(type) {
	case common.Hash:
		return h, nil
	case [32]byte:
		return common.Hash(h), nil
	default:
		return common.Hash{}, fmt.Errorf("%w: %s type %T", ErrUnexpectedResult, field, v)
	}
}

func asBig(field string, v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return new(big.Int), nil
		}
		return new(big.Int).Set(n), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	default:
		return nil, fmt.Errorf("%w: %s type %T", ErrUnexpectedResult, field, v)
	}
}

func asUint64(field string, v any) (uint64, error) {
	n, err := asBig(field, v)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s %s out of range", ErrUnexpectedResult, field, n)
	}
	return n.Uint64(), nil
}
