//go:build integration

package eth

import (
	"context"
	"errors"
	"math/big"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Pinned for deterministic runs.
const anvilImage = "ghcr.io/foundry-rs/foundry@sha256:043752653d5be351c71709091b3db97c4421c907eb40ea294195e7f532aadf46"

func TestSubmitter_AnvilTransferAndRejection(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}

	port := mustFreePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	containerID := dockerRunAnvil(t, ctx, anvilImage, port)
	t.Cleanup(func() { _ = exec.Command("docker", "rm", "-f", containerID).Run() })

	client := dialRPC(t, ctx, "http://127.0.0.1:"+port)
	defer client.Close()

	// Anvil default funded dev key.
	key, err := crypto.HexToECDSA(strings.TrimPrefix("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", "0x"))
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	funded := NewLocalSigner(key)

	s, err := NewSubmitter(client, SubmitterConfig{
		ChainID:             big.NewInt(31337),
		ReceiptPollInterval: 200 * time.Millisecond,
		ConfirmTimeout:      20 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}

	fresh, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner: %v", err)
	}
	to := fresh.Address()
	res, err := s.Submit(ctx, funded, TxRequest{To: &to, Value: big.NewInt(1_000_000_000_000_000)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("receipt: %+v", res.Receipt)
	}
	bal, err := client.BalanceAt(ctx, to, nil)
	if err != nil {
		t.Fatalf("BalanceAt: %v", err)
	}
	if bal.Cmp(big.NewInt(1_000_000_000_000_000)) != 0 {
		t.Fatalf("balance: got %s", bal)
	}

	// An unfunded account cannot pay for gas.
	broke, err := GenerateLocalSigner()
	if err != nil {
		t.Fatalf("GenerateLocalSigner: %v", err)
	}
	dead := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	_, err = s.Submit(ctx, broke, TxRequest{To: &dead, Value: big.NewInt(1)})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(strings.ToLower(Reason(err)), "insufficient funds") {
		t.Fatalf("reason: %q", Reason(err))
	}
}

func mustFreePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return strings.TrimPrefix(ln.Addr().String(), "127.0.0.1:")
}

func dockerRunAnvil(t *testing.T, ctx context.Context, image string, hostPort string) string {
	t.Helper()

	cmd := exec.CommandContext(ctx, "docker",
		"run", "--rm", "-d",
		"-e", "ANVIL_IP_ADDR=0.0.0.0",
		"-p", "127.0.0.1:"+hostPort+":8545",
		image,
		"anvil", "--port", "8545", "--chain-id", "31337",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("docker run anvil: %v: %s", err, string(out))
	}
	return strings.TrimSpace(string(out))
}

func dialRPC(t *testing.T, ctx context.Context, url string) *ethclient.Client {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		c, err := ethclient.DialContext(cctx, url)
		if err == nil {
			if _, err = c.ChainID(cctx); err == nil {
				cancel()
				return c
			}
			c.Close()
		}
		cancel()
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("rpc not ready: %s", url)
	return nil
}
