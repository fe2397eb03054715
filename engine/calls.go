package engine

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is one entry of a send-transaction-batch submission.
type Call struct {
	ToAddress string `json:"toAddress"`
	Data      string `json:"data"`
	Value     string `json:"value"`
}

// Token contract surface the bot encodes against. Registration is a
// precondition for sending, not for receiving.
const tipTokenABIJSON = `[
	{"type":"function","name":"registerAccount","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"}],"outputs":[]},
	{"type":"function","name":"tipMany","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address[]"},{"name":"from","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var tipTokenABI = mustABI(tipTokenABIJSON)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RegisterAccountCall encodes a registerAccount(address) call against the tip
// token. Pure encoding; nothing is submitted.
func RegisterAccountCall(tipToken, account string) (Call, error) {
	if !common.IsHexAddress(account) {
		return Call{}, fmt.Errorf("invalid account address %q", account)
	}
	data, err := tipTokenABI.Pack("registerAccount", common.HexToAddress(account))
	if err != nil {
		return Call{}, err
	}
	return Call{ToAddress: tipToken, Data: hexutil.Encode(data), Value: "0"}, nil
}

// TipManyCall encodes one transfer of amountWei from the sender to every
// recipient. Recipient order is preserved so the same intent always encodes
// to the same calldata.
func TipManyCall(tipToken, from string, to []string, amountWei *big.Int) (Call, error) {
	if !common.IsHexAddress(from) {
		return Call{}, fmt.Errorf("invalid sender address %q", from)
	}
	recipients := make([]common.Address, 0, len(to))
	for _, addr := range to {
		if !common.IsHexAddress(addr) {
			return Call{}, fmt.Errorf("invalid recipient address %q", addr)
		}
		recipients = append(recipients, common.HexToAddress(addr))
	}
	data, err := tipTokenABI.Pack("tipMany", recipients, common.HexToAddress(from), amountWei)
	if err != nil {
		return Call{}, err
	}
	return Call{ToAddress: tipToken, Data: hexutil.Encode(data), Value: "0"}, nil
}
