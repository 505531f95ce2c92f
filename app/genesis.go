package app

import (
	"encoding/json"
	"fmt"

	"github.com/ahmadzakiakmal/produce-registry/kv"
	"github.com/ahmadzakiakmal/produce-registry/ledger"
)

// GenesisState is the app_state of genesis.json.
type GenesisState struct {
	Administrator ledger.Account `json:"administrator"`
	// Policy defaults to ledger.DefaultPolicy when omitted
	Policy *ledger.Policy `json:"policy,omitempty"`
}

// ParseGenesisState decodes and validates app_state
func ParseGenesisState(raw []byte) (*GenesisState, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("genesis app_state is empty, an administrator is required")
	}
	var g GenesisState
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("invalid genesis app_state: %w", err)
	}
	if g.Administrator.IsZero() {
		return nil, fmt.Errorf("genesis app_state: administrator is required")
	}
	if g.Policy == nil {
		p := ledger.DefaultPolicy()
		g.Policy = &p
	}
	if err := g.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("genesis app_state: %w", err)
	}
	return &g, nil
}

// Apply writes the genesis state to store
func (g *GenesisState) Apply(store kv.Store, chainID string) error {
	if err := ledger.NewRoleRegistry(store).Bootstrap(g.Administrator); err != nil {
		return err
	}
	if err := ledger.SavePolicy(store, *g.Policy); err != nil {
		return err
	}
	return store.Set(ledger.KeyChainID, []byte(chainID))
}
