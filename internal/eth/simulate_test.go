package eth

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSimulate(t *testing.T) {
	backend := newFakeBackend()
	to := common.HexToAddress("0x0000000000000000000000000000000000001001")

	gas, err := Simulate(context.Background(), backend, common.HexToAddress("0x01"), TxRequest{To: &to})
	if err != nil || gas != 21000 {
		t.Fatalf("Simulate: gas %d err %v", gas, err)
	}

	backend.estimateErr = &fakeRPCError{code: 3, msg: "execution reverted: There are no kyc centres"}
	_, err = Simulate(context.Background(), backend, common.HexToAddress("0x01"), TxRequest{To: &to})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if Reason(err) != "execution reverted: There are no kyc centres" {
		t.Fatalf("reason: %q", Reason(err))
	}
	if len(backend.sent) != 0 {
		t.Fatalf("Simulate must not broadcast")
	}
}
