package adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Holding is a wallet balance of one asset in whole units.
type Holding struct {
	Address string
	Raw     string
	Amount  decimal.Decimal
}

// Holders returns up to limit holders of asset, largest balance first. Addresses are
// de-duplicated with their quantities summed. Quantities that do not parse are skipped.
func (a *Adapter) Holders(ctx context.Context, asset config.AssetSpec, limit int) ([]Holding, error) {
	if a.assets == nil {
		return nil, fmt.Errorf("holder lookup needs an asset provider")
	}

	// The provider lists holders in creation order, so fetch a wider window before
	// picking the largest.
	window := limit * 10
	if window < a.defaultMx {
		window = a.defaultMx
	}
	raw, err := a.assets.AssetAddresses(ctx, asset.Unit, window)
	if err != nil && len(raw) == 0 {
		return nil, fmt.Errorf("list holders of %s: %w", asset.Symbol, err)
	}
	if err != nil {
		a.logger.Warn("holder listing stopped early",
			zap.String("asset", asset.Symbol),
			zap.Int("collected", len(raw)),
			zap.Error(err),
		)
	}

	byAddr := make(map[string]decimal.Decimal, len(raw))
	var order []string
	for _, h := range raw {
		q, err := decimal.NewFromString(h.Quantity)
		if err != nil {
			a.logger.Warn("unparseable holder quantity",
				zap.String("address", h.Address),
				zap.String("quantity", h.Quantity),
			)
			continue
		}
		if _, ok := byAddr[h.Address]; !ok {
			order = append(order, h.Address)
		}
		byAddr[h.Address] = byAddr[h.Address].Add(q)
	}

	out := make([]Holding, 0, len(order))
	for _, addr := range order {
		q := byAddr[addr]
		out = append(out, Holding{Address: addr, Raw: q.String(), Amount: q.Shift(-asset.Decimals)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SupplyOf returns the circulating supply of asset in whole units.
func (a *Adapter) SupplyOf(ctx context.Context, asset config.AssetSpec) (decimal.Decimal, error) {
	if a.assets == nil {
		return decimal.Zero, fmt.Errorf("supply lookup needs an asset provider")
	}
	info, err := a.assets.Asset(ctx, asset.Unit)
	if err != nil {
		return decimal.Zero, err
	}
	return Normalize(info.Quantity, asset.Decimals)
}

// PoolBalance sums the balance of unit held at addresses, in whole units. Any failing
// address fails the whole call, since a partial sum would understate the pool.
func (a *Adapter) PoolBalance(ctx context.Context, provider string, addresses []string, asset config.AssetSpec) (decimal.Decimal, error) {
	client, ok := a.utxo[provider]
	if !ok {
		return decimal.Zero, fmt.Errorf("no client for provider %q", provider)
	}

	total := decimal.Zero
	for _, addr := range addresses {
		amounts, err := client.AddressAmounts(ctx, addr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("balance of %s: %w", addr, err)
		}
		for _, amt := range amounts {
			if amt.Unit != asset.Unit {
				continue
			}
			n, err := Normalize(amt.Quantity, asset.Decimals)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(n)
		}
	}
	return total, nil
}

// AssetInfo returns provider metadata for a registry asset.
func (a *Adapter) AssetInfo(ctx context.Context, asset config.AssetSpec) (name, policyID, fingerprint string, err error) {
	if a.assets == nil {
		return "", "", "", fmt.Errorf("asset lookup needs an asset provider")
	}
	info, err := a.assets.Asset(ctx, asset.Unit)
	if err != nil {
		return "", "", "", err
	}
	return info.DisplayName(), info.PolicyID, info.Fingerprint, nil
}
