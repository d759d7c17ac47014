package chainapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/canopy-network/defisnap/pkg/chainapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKoiosAddressAmounts(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/address_info", r.URL.Path)

		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"addr1pool"}, req["_addresses"])

		_, _ = w.Write([]byte(`[{
			"address": "addr1pool",
			"balance": "3000000",
			"utxo_set": [
				{"tx_hash": "a", "tx_index": 0, "value": "1000000", "asset_list": [
					{"policy_id": "f66d", "asset_name": "69555344", "quantity": "250"}
				]},
				{"tx_hash": "b", "tx_index": 1, "value": "2000000", "asset_list": []}
			]
		}]`))
	})

	k := chainapi.NewKoios(testOpts(handler, chainapi.Opts{}))
	amounts, err := k.AddressAmounts(context.Background(), "addr1pool")
	require.NoError(t, err)
	assert.Equal(t, []chainapi.Amount{
		{Unit: "f66d69555344", Quantity: "250"},
		{Unit: "lovelace", Quantity: "3000000"},
	}, amounts)
}

func TestSumAmountsRejectsBadQuantity(t *testing.T) {
	_, err := chainapi.SumAmounts([]chainapi.Amount{{Unit: "lovelace", Quantity: "12x"}})
	assert.Error(t, err)
}
