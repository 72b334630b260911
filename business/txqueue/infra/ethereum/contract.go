package ethereum

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chain-txqueue/business/txqueue/app"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/config"
)

// ABIContract packs calls with a parsed ABI.
type ABIContract struct {
	address common.Address
	abi     abi.ABI
}

var _ app.ContractHandle = (*ABIContract)(nil)

// NewABIContract parses abiJSON for the contract at address.
func NewABIContract(address common.Address, abiJSON string) (*ABIContract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &ABIContract{address: address, abi: parsed}, nil
}

// Address returns the deployed address.
func (c *ABIContract) Address() common.Address { return c.address }

// ABI returns the parsed interface.
func (c *ABIContract) ABI() *abi.ABI { return &c.abi }

// PopulateTransaction packs a call to method.
func (c *ABIContract) PopulateTransaction(method string, args ...any) (domain.CallRequest, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return domain.CallRequest{}, err
	}
	to := c.address
	return domain.CallRequest{To: &to, Data: data}, nil
}

// LoadContracts builds handles for the configured contracts. An inline ABI
// takes precedence over ABIPath.
func LoadContracts(cfgs map[string]config.ContractConfig) (map[string]app.ContractHandle, error) {
	out := make(map[string]app.ContractHandle, len(cfgs))

	for name, cfg := range cfgs {
		abiJSON := cfg.ABI
		if abiJSON == "" {
			raw, err := os.ReadFile(cfg.ABIPath)
			if err != nil {
				return nil, apperror.New(apperror.CodeConfigurationError,
					apperror.WithCause(err),
					apperror.WithContext("contracts."+name))
			}
			abiJSON = string(raw)
		}

		c, err := NewABIContract(cfg.AddressHex(), abiJSON)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithCause(err),
				apperror.WithContext("contracts."+name))
		}
		out[name] = c
	}

	return out, nil
}
