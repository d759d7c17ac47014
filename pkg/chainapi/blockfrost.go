package chainapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Blockfrost is a client for the Blockfrost Cardano API.
type Blockfrost struct {
	http *HTTPClient
}

// NewBlockfrost authenticates every request with the project id header.
func NewBlockfrost(o Opts, projectID string) *Blockfrost {
	headers := map[string]string{"project_id": projectID}
	for k, v := range o.Headers {
		headers[k] = v
	}
	o.Headers = headers
	return &Blockfrost{http: NewHTTPWithOpts(o)}
}

// AddressUTXOs returns every unspent output at address. An address Blockfrost has never
// seen has no outputs.
func (b *Blockfrost) AddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return listPaged[UTXO](ctx, b.http, fmt.Sprintf(addressUTXOsPath, url.PathEscape(address)), nil, 0)
}

// AddressAmounts returns the address balance per unit, summed over its UTXOs.
func (b *Blockfrost) AddressAmounts(ctx context.Context, address string) ([]Amount, error) {
	utxos, err := b.AddressUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}
	var amounts []Amount
	for _, u := range utxos {
		amounts = append(amounts, u.Amount...)
	}
	return SumAmounts(amounts)
}

// AssetAddresses returns holders of unit in listing order, up to limit (0 = all). The
// listing follows when addresses first held the asset, not their quantity.
func (b *Blockfrost) AssetAddresses(ctx context.Context, unit string, limit int) ([]AssetHolder, error) {
	q := url.Values{}
	q.Set("order", "desc")
	return listPaged[AssetHolder](ctx, b.http, fmt.Sprintf(assetAddressesPath, url.PathEscape(unit)), q, limit)
}

// PolicyAssets returns the assets minted under policy.
func (b *Blockfrost) PolicyAssets(ctx context.Context, policy string, limit int) ([]PolicyAsset, error) {
	return listPaged[PolicyAsset](ctx, b.http, fmt.Sprintf(policyAssetsPath, url.PathEscape(policy)), nil, limit)
}

// Asset returns the description of unit.
func (b *Blockfrost) Asset(ctx context.Context, unit string) (*AssetInfo, error) {
	var info AssetInfo
	if err := b.http.doJSON(ctx, http.MethodGet, fmt.Sprintf(assetPath, url.PathEscape(unit)), nil, &info); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("asset %s: %w", unit, err)
		}
		return nil, err
	}
	return &info, nil
}
