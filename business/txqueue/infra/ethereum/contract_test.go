package ethereum

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/config"
)

const erc20ABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
"outputs":[{"name":"","type":"bool"}]}]`

const tokenAddr = "0x0000000000000000000000000000000000000c01"

func TestABIContract_PopulateTransaction(t *testing.T) {
	c, err := NewABIContract(common.HexToAddress(tokenAddr), erc20ABI)
	if err != nil {
		t.Fatalf("NewABIContract: %v", err)
	}

	req, err := c.PopulateTransaction("transfer", common.HexToAddress("0x01"), big.NewInt(1000))
	if err != nil {
		t.Fatalf("PopulateTransaction: %v", err)
	}

	if *req.To != c.Address() {
		t.Fatalf("to = %s, want %s", req.To.Hex(), c.Address().Hex())
	}
	selector := []byte{0xa9, 0x05, 0x9c, 0xbb}
	if !bytes.Equal(req.Data[:4], selector) || len(req.Data) != 4+64 {
		t.Fatalf("unexpected calldata %x", req.Data)
	}

	if _, err := c.PopulateTransaction("approve"); err == nil {
		t.Fatal("expected error for unknown method")
	}
	if _, err := c.PopulateTransaction("transfer", "not-an-address"); err == nil {
		t.Fatal("expected error for bad arguments")
	}
}

func TestLoadContracts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if err := os.WriteFile(path, []byte(erc20ABI), 0o600); err != nil {
		t.Fatal(err)
	}

	contracts, err := LoadContracts(map[string]config.ContractConfig{
		"inline": {Address: tokenAddr, ABI: erc20ABI},
		"file":   {Address: tokenAddr, ABIPath: path},
	})
	if err != nil {
		t.Fatalf("LoadContracts: %v", err)
	}
	for _, name := range []string{"inline", "file"} {
		c, ok := contracts[name]
		if !ok {
			t.Fatalf("missing contract %s", name)
		}
		if _, ok := c.ABI().Methods["transfer"]; !ok {
			t.Fatalf("%s: transfer not parsed", name)
		}
	}

	_, err = LoadContracts(map[string]config.ContractConfig{
		"missing": {Address: tokenAddr, ABIPath: filepath.Join(dir, "nope.json")},
	})
	if apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Fatalf("err = %v, want %s", err, apperror.CodeConfigurationError)
	}
}
