package chainapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canopy-network/defisnap/pkg/chainapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockfrostAddressAmountsWalksPages(t *testing.T) {
	pages := map[string][]chainapi.UTXO{
		"1": {
			{TxHash: "a", Amount: []chainapi.Amount{{Unit: "lovelace", Quantity: "1000000"}, {Unit: "abc01", Quantity: "5"}}},
			{TxHash: "b", Amount: []chainapi.Amount{{Unit: "lovelace", Quantity: "2500000"}}},
		},
		"2": {
			{TxHash: "c", Amount: []chainapi.Amount{{Unit: "abc01", Quantity: "7"}}},
		},
	}

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/addresses/addr1xyz/utxos", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("project_id"))
		assert.Equal(t, "100", r.URL.Query().Get("count"))

		items := pages[r.URL.Query().Get("page")]
		if items == nil {
			items = []chainapi.UTXO{}
		}
		_ = json.NewEncoder(w).Encode(items)
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{}), "secret")
	amounts, err := bf.AddressAmounts(context.Background(), "addr1xyz")
	require.NoError(t, err)
	assert.Equal(t, []chainapi.Amount{
		{Unit: "abc01", Quantity: "12"},
		{Unit: "lovelace", Quantity: "3500000"},
	}, amounts)
	assert.EqualValues(t, 3, calls.Load(), "stops at the first empty page")
}

func TestBlockfrostUnknownAddressIsEmpty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code":404,"error":"Not Found"}`))
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{}), "secret")
	utxos, err := bf.AddressUTXOs(context.Background(), "addr1unused")
	require.NoError(t, err)
	assert.Empty(t, utxos)

	_, err = bf.Asset(context.Background(), "deadbeef")
	assert.True(t, errors.Is(err, chainapi.ErrNotFound))
}

func TestBlockfrostAssetAddressesRespectsLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		holders := make([]chainapi.AssetHolder, 100)
		for i := range holders {
			holders[i] = chainapi.AssetHolder{Address: "addr" + r.URL.Query().Get("page") + "_" + string(rune('a'+i%26)), Quantity: "1"}
		}
		_ = json.NewEncoder(w).Encode(holders)
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{}), "secret")
	holders, err := bf.AssetAddresses(context.Background(), "unit", 150)
	require.NoError(t, err)
	assert.Len(t, holders, 150)
	assert.True(t, strings.HasPrefix(holders[149].Address, "addr2_"))
}

func TestPagingErrorKeepsCollectedItems(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_ = json.NewEncoder(w).Encode([]chainapi.PolicyAsset{{Asset: "p1", Quantity: "1"}})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{}), "secret")
	assets, err := bf.PolicyAssets(context.Background(), "policy", 0)
	require.Error(t, err)
	var se *chainapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Len(t, assets, 1)
}

func TestRetriesServerErrorsUpToMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(chainapi.AssetInfo{Asset: "unit", Quantity: "42"})
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{MaxAttempts: 3}), "secret")
	info, err := bf.Asset(context.Background(), "unit")
	require.NoError(t, err)
	assert.Equal(t, "42", info.Quantity)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{MaxAttempts: 2}), "secret")
	_, err := bf.Asset(context.Background(), "unit")
	var se *chainapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBreakerFailsOverToNextEndpoint(t *testing.T) {
	var primary, secondary atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "primary" {
			primary.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		secondary.Add(1)
		_ = json.NewEncoder(w).Encode(chainapi.AssetInfo{Asset: "unit"})
	})

	opts := testOpts(handler, chainapi.Opts{
		Endpoints:       []string{"http://primary", "http://secondary"},
		MaxAttempts:     1,
		BreakerFailures: 1,
		BreakerCooldown: time.Minute,
	})
	bf := chainapi.NewBlockfrost(opts, "secret")

	for i := 0; i < 3; i++ {
		_, err := bf.Asset(context.Background(), "unit")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, primary.Load(), "open breaker skips the failing endpoint")
	assert.EqualValues(t, 3, secondary.Load())
}

func TestCallTimeout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	bf := chainapi.NewBlockfrost(testOpts(handler, chainapi.Opts{Timeout: 20 * time.Millisecond, MaxAttempts: 1}), "secret")
	_, err := bf.Asset(context.Background(), "unit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
