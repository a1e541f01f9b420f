// SPDX-License-Identifier: MIT

package core

import (
	"encoding/json"
	"fmt"
	"os"

	"rustchain/types"
)

type GenesisAccount struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"` // micro-RTC
}

type Genesis struct {
	Alloc []GenesisAccount `json:"alloc"`
}

func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("invalid genesis json: %w", err)
	}
	return &g, nil
}

// ApplyGenesis premints the alloc into the ledger. It runs once: the
// ledger's audit trail records each mint, and the caller guards
// against re-application with the store's applied flag.
func ApplyGenesis(ledger *types.Ledger, g *Genesis) error {
	for _, acc := range g.Alloc {
		addr, err := types.ParseAddress(acc.Address)
		if err != nil {
			return fmt.Errorf("bad genesis account %s: %w", acc.Address, err)
		}
		if acc.Balance < 0 {
			return fmt.Errorf("negative genesis balance for %s", acc.Address)
		}
		if err := ledger.Credit(addr, acc.Balance, 0, "genesis"); err != nil {
			return fmt.Errorf("mint failed %s: %w", acc.Address, err)
		}
	}
	return nil
}
