package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// ResolveAddresses returns the addresses whose balances make up the protocol's holdings,
// de-duplicated in discovery order.
func (a *Adapter) ResolveAddresses(ctx context.Context, p *config.ProtocolSpec) ([]string, error) {
	switch p.Source {
	case config.SourceAddresses, "":
		return utils.Dedup(p.Addresses), nil
	case config.SourceAssetHolders:
		return a.assetHolderAddresses(ctx, p)
	case config.SourcePolicyHolders:
		return a.policyHolderAddresses(ctx, p)
	}
	return nil, fmt.Errorf("protocol %s: unknown source %q", p.Name, p.Source)
}

func (a *Adapter) maxAddresses(p *config.ProtocolSpec) int {
	if p.MaxAddresses > 0 {
		return p.MaxAddresses
	}
	return a.defaultMx
}

// assetHolderAddresses lists holders of the protocol's holder asset. A paging error
// after some holders were collected keeps what was collected.
func (a *Adapter) assetHolderAddresses(ctx context.Context, p *config.ProtocolSpec) ([]string, error) {
	if a.assets == nil {
		return nil, fmt.Errorf("protocol %s: asset holder discovery needs an asset provider", p.Name)
	}
	asset, ok := a.registry.Asset(p.HolderAsset)
	if !ok {
		return nil, fmt.Errorf("protocol %s: unknown holder asset %q", p.Name, p.HolderAsset)
	}

	holders, err := a.assets.AssetAddresses(ctx, asset.Unit, a.maxAddresses(p))
	if err != nil {
		if len(holders) == 0 {
			return nil, fmt.Errorf("protocol %s: list holders of %s: %w", p.Name, asset.Symbol, err)
		}
		a.logger.Warn("holder listing stopped early",
			zap.String("protocol", p.Name),
			zap.Int("collected", len(holders)),
			zap.Error(err),
		)
	}

	seen := xsync.NewMap[string, struct{}]()
	out := make([]string, 0, len(holders))
	for _, h := range holders {
		if _, loaded := seen.LoadOrStore(h.Address, struct{}{}); !loaded {
			out = append(out, h.Address)
		}
	}
	return out, nil
}

// policyHolderAddresses lists every asset under the protocol's policy, then the holders
// of each asset. Holder lookups run in the worker pool; a failing asset is skipped.
func (a *Adapter) policyHolderAddresses(ctx context.Context, p *config.ProtocolSpec) ([]string, error) {
	if a.assets == nil {
		return nil, fmt.Errorf("protocol %s: policy holder discovery needs an asset provider", p.Name)
	}
	limit := a.maxAddresses(p)

	assets, err := a.assets.PolicyAssets(ctx, p.HolderPolicy, 0)
	if err != nil {
		if len(assets) == 0 {
			return nil, fmt.Errorf("protocol %s: list policy %s: %w", p.Name, p.HolderPolicy, err)
		}
		a.logger.Warn("policy asset listing stopped early",
			zap.String("protocol", p.Name),
			zap.Int("collected", len(assets)),
			zap.Error(err),
		)
	}

	perAsset := make([][]string, len(assets))
	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, pa := range assets {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			holders, err := a.assets.AssetAddresses(groupCtx, pa.Asset, limit)
			if err != nil {
				a.logger.Warn("asset holder fetch failed",
					zap.String("protocol", p.Name),
					zap.String("asset", pa.Asset),
					zap.Error(err),
				)
			}
			for _, h := range holders {
				perAsset[i] = append(perAsset[i], h.Address)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("policy holder group encountered error", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	seen := xsync.NewMap[string, struct{}]()
	for _, addrs := range perAsset {
		for _, addr := range addrs {
			if len(out) >= limit {
				return out, nil
			}
			if _, loaded := seen.LoadOrStore(addr, struct{}{}); !loaded {
				out = append(out, addr)
			}
		}
	}
	return out, nil
}
