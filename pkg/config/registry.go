package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Providers and address-discovery strategies understood by the source adapter.
const (
	ProviderBlockfrost = "blockfrost"
	ProviderKoios      = "koios"

	SourceAddresses     = "addresses"
	SourceAssetHolders  = "asset_holders"
	SourcePolicyHolders = "policy_holders"

	LovelaceUnit = "lovelace"
)

// Registry is the protocol registry file: which assets are tracked and how each
// protocol's holdings are discovered.
type Registry struct {
	Chain     string         `yaml:"chain"`
	Assets    []AssetSpec    `yaml:"assets"`
	Protocols []ProtocolSpec `yaml:"protocols"`
}

// AssetSpec describes one tracked asset. Unit is the provider unit
// (policy id + hex asset name, or "lovelace").
type AssetSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Unit     string `yaml:"unit"`
	Decimals int32  `yaml:"decimals"`
	// PriceUSD is a manual quote; assets without one cannot be valued in USD.
	PriceUSD *float64 `yaml:"price_usd"`
}

func (a AssetSpec) IsLovelace() bool { return a.Unit == LovelaceUnit }

type ProtocolSpec struct {
	Name          string   `yaml:"name"`
	Segment       string   `yaml:"segment"`
	Chain         string   `yaml:"chain"`
	Provider      string   `yaml:"provider"`
	Source        string   `yaml:"source"`
	Addresses     []string `yaml:"addresses"`
	HolderAsset   string   `yaml:"holder_asset"`
	HolderPolicy  string   `yaml:"holder_policy"`
	MaxAddresses  int      `yaml:"max_addresses"`
	ExcludeAssets []string `yaml:"exclude_assets"`

	Wallets      *WalletSpec       `yaml:"wallets"`
	LendingPools []LendingPoolSpec `yaml:"lending_pools"`
}

// WalletSpec configures the top wallet job for a protocol's token.
type WalletSpec struct {
	Asset      string `yaml:"asset"`
	MaxHolders int    `yaml:"max_holders"`
	TopN       int    `yaml:"top_n"`
}

// LendingPoolSpec configures APY estimation for one lending market.
type LendingPoolSpec struct {
	Name       string   `yaml:"name"`
	QToken     string   `yaml:"qtoken"`
	Underlying string   `yaml:"underlying"`
	Addresses  []string `yaml:"addresses"`

	// Placeholder rates, written only in staging mode.
	PlaceholderSupplyAPY float64 `yaml:"placeholder_supply_apy"`
	PlaceholderBorrowAPY float64 `yaml:"placeholder_borrow_apy"`
}

// LoadRegistry reads and normalizes a registry file.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read protocol registry %s: %v", ErrInvalid, path, err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes YAML and applies defaults.
func ParseRegistry(raw []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("%w: decode protocol registry: %v", ErrInvalid, err)
	}

	if reg.Chain == "" {
		reg.Chain = "Cardano"
	}
	for i := range reg.Protocols {
		p := &reg.Protocols[i]
		if p.Chain == "" {
			p.Chain = reg.Chain
		}
		if p.Provider == "" {
			p.Provider = ProviderBlockfrost
		}
		if p.Source == "" {
			p.Source = SourceAddresses
		}
		if p.Wallets != nil {
			if p.Wallets.MaxHolders <= 0 {
				p.Wallets.MaxHolders = 100
			}
			if p.Wallets.TopN <= 0 {
				p.Wallets.TopN = 10
			}
		}
	}
	return &reg, nil
}

// Validate checks references between protocols and assets.
func (r *Registry) Validate() error {
	if len(r.Protocols) == 0 {
		return fmt.Errorf("%w: registry has no protocols", ErrInvalid)
	}

	symbols := map[string]bool{}
	for _, a := range r.Assets {
		if a.Symbol == "" || a.Unit == "" {
			return fmt.Errorf("%w: asset entries need symbol and unit", ErrInvalid)
		}
		key := strings.ToLower(a.Symbol)
		if symbols[key] {
			return fmt.Errorf("%w: duplicate asset %q", ErrInvalid, a.Symbol)
		}
		symbols[key] = true
		if a.Decimals < 0 {
			return fmt.Errorf("%w: asset %q has negative decimals", ErrInvalid, a.Symbol)
		}
	}

	names := map[string]bool{}
	for _, p := range r.Protocols {
		if p.Name == "" {
			return fmt.Errorf("%w: protocol without name", ErrInvalid)
		}
		key := strings.ToLower(p.Name)
		if names[key] {
			return fmt.Errorf("%w: duplicate protocol %q", ErrInvalid, p.Name)
		}
		names[key] = true

		switch p.Provider {
		case ProviderBlockfrost, ProviderKoios:
		default:
			return fmt.Errorf("%w: protocol %q: unknown provider %q", ErrInvalid, p.Name, p.Provider)
		}

		switch p.Source {
		case SourceAddresses:
			if len(p.Addresses) == 0 {
				return fmt.Errorf("%w: protocol %q: source %q needs addresses", ErrInvalid, p.Name, p.Source)
			}
		case SourceAssetHolders:
			if _, ok := r.Asset(p.HolderAsset); !ok {
				return fmt.Errorf("%w: protocol %q: holder_asset %q is not a registry asset", ErrInvalid, p.Name, p.HolderAsset)
			}
		case SourcePolicyHolders:
			if p.HolderPolicy == "" {
				return fmt.Errorf("%w: protocol %q: source %q needs holder_policy", ErrInvalid, p.Name, p.Source)
			}
		default:
			return fmt.Errorf("%w: protocol %q: unknown source %q", ErrInvalid, p.Name, p.Source)
		}
		if p.Provider == ProviderKoios && p.Source != SourceAddresses {
			return fmt.Errorf("%w: protocol %q: koios only supports source %q", ErrInvalid, p.Name, SourceAddresses)
		}

		for _, ex := range p.ExcludeAssets {
			if _, ok := r.Asset(ex); !ok {
				return fmt.Errorf("%w: protocol %q: exclude_assets entry %q is not a registry asset", ErrInvalid, p.Name, ex)
			}
		}
		if p.Wallets != nil {
			if _, ok := r.Asset(p.Wallets.Asset); !ok {
				return fmt.Errorf("%w: protocol %q: wallets.asset %q is not a registry asset", ErrInvalid, p.Name, p.Wallets.Asset)
			}
		}
		for _, lp := range p.LendingPools {
			if _, ok := r.Asset(lp.QToken); !ok {
				return fmt.Errorf("%w: protocol %q: pool %q qtoken %q is not a registry asset", ErrInvalid, p.Name, lp.Name, lp.QToken)
			}
			if _, ok := r.Asset(lp.Underlying); !ok {
				return fmt.Errorf("%w: protocol %q: pool %q underlying %q is not a registry asset", ErrInvalid, p.Name, lp.Name, lp.Underlying)
			}
		}
	}
	return nil
}

// Asset looks an asset up by symbol, case-insensitively.
func (r *Registry) Asset(symbol string) (AssetSpec, bool) {
	for _, a := range r.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return AssetSpec{}, false
}

// AssetByUnit looks an asset up by provider unit.
func (r *Registry) AssetByUnit(unit string) (AssetSpec, bool) {
	for _, a := range r.Assets {
		if a.Unit == unit {
			return a, true
		}
	}
	return AssetSpec{}, false
}

// Protocol looks a protocol up by name, case-insensitively.
func (r *Registry) Protocol(name string) (ProtocolSpec, bool) {
	for _, p := range r.Protocols {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ProtocolSpec{}, false
}
