package chainapi

import (
	"context"
	"net/http"
)

// Koios is a client for the Koios REST API, used as an alternate UTXO provider.
type Koios struct {
	http *HTTPClient
}

func NewKoios(o Opts) *Koios {
	return &Koios{http: NewHTTPWithOpts(o)}
}

type KoiosAddressInfo struct {
	Address       string      `json:"address"`
	Balance       string      `json:"balance"`
	StakeAddress  *string     `json:"stake_address"`
	ScriptAddress bool        `json:"script_address"`
	UTXOSet       []KoiosUTXO `json:"utxo_set"`
}

type KoiosUTXO struct {
	TxHash    string       `json:"tx_hash"`
	TxIndex   int          `json:"tx_index"`
	Value     string       `json:"value"`
	AssetList []KoiosAsset `json:"asset_list"`
}

type KoiosAsset struct {
	PolicyID    string `json:"policy_id"`
	AssetName   string `json:"asset_name"`
	Fingerprint string `json:"fingerprint"`
	Decimals    int    `json:"decimals"`
	Quantity    string `json:"quantity"`
}

// AddressInfo returns balances and UTXOs of the given addresses.
func (k *Koios) AddressInfo(ctx context.Context, addresses []string) ([]KoiosAddressInfo, error) {
	var out []KoiosAddressInfo
	payload := map[string]any{"_addresses": addresses}
	if err := k.http.doJSON(ctx, http.MethodPost, addressInfoPath, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddressAmounts returns the address balance per unit in Blockfrost's unit notation.
func (k *Koios) AddressAmounts(ctx context.Context, address string) ([]Amount, error) {
	infos, err := k.AddressInfo(ctx, []string{address})
	if err != nil {
		return nil, err
	}

	var amounts []Amount
	for _, info := range infos {
		for _, u := range info.UTXOSet {
			if u.Value != "" {
				amounts = append(amounts, Amount{Unit: LovelaceUnit, Quantity: u.Value})
			}
			for _, a := range u.AssetList {
				amounts = append(amounts, Amount{Unit: a.PolicyID + a.AssetName, Quantity: a.Quantity})
			}
		}
	}
	return SumAmounts(amounts)
}
