package chainapi

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// LovelaceUnit is the unit Blockfrost uses for the native coin.
const LovelaceUnit = "lovelace"

// Amount is a quantity of one unit in the smallest denomination. Unit is "lovelace" or
// policy id followed by the hex asset name.
type Amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// UTXO is an unspent output at an address.
type UTXO struct {
	Address     string   `json:"address"`
	TxHash      string   `json:"tx_hash"`
	OutputIndex int      `json:"output_index"`
	Amount      []Amount `json:"amount"`
	Block       string   `json:"block"`
}

// AssetHolder is an address and the quantity of one asset it holds.
type AssetHolder struct {
	Address  string `json:"address"`
	Quantity string `json:"quantity"`
}

// PolicyAsset is one asset minted under a policy.
type PolicyAsset struct {
	Asset    string `json:"asset"`
	Quantity string `json:"quantity"`
}

// AssetInfo is Blockfrost's asset description. Quantity is the circulating supply.
type AssetInfo struct {
	Asset           string         `json:"asset"`
	PolicyID        string         `json:"policy_id"`
	AssetName       string         `json:"asset_name"`
	Fingerprint     string         `json:"fingerprint"`
	Quantity        string         `json:"quantity"`
	Metadata        *AssetMetadata `json:"metadata"`
	OnchainMetadata map[string]any `json:"onchain_metadata"`
}

// AssetMetadata is the off-chain registry entry of an asset.
type AssetMetadata struct {
	Name     string `json:"name"`
	Ticker   string `json:"ticker"`
	Decimals *int   `json:"decimals"`
}

// DisplayName prefers registry metadata, then on-chain metadata.
func (a *AssetInfo) DisplayName() string {
	if a.Metadata != nil && a.Metadata.Name != "" {
		return a.Metadata.Name
	}
	if name, ok := a.OnchainMetadata["name"].(string); ok {
		return name
	}
	return ""
}

// SumAmounts adds quantities per unit. The result is ordered by unit.
func SumAmounts(amounts []Amount) ([]Amount, error) {
	totals := make(map[string]decimal.Decimal)
	for _, a := range amounts {
		q, err := decimal.NewFromString(a.Quantity)
		if err != nil {
			return nil, fmt.Errorf("quantity %q of %s: %w", a.Quantity, a.Unit, err)
		}
		totals[a.Unit] = totals[a.Unit].Add(q)
	}

	out := make([]Amount, 0, len(totals))
	for unit, q := range totals {
		out = append(out, Amount{Unit: unit, Quantity: q.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Unit < out[j].Unit })
	return out, nil
}
