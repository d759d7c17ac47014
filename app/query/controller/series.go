package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/canopy-network/defisnap/pkg/db"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// recentRiskLimit is how many risk rows /risk returns.
const recentRiskLimit = 10

// HandleTVL returns the protocol's daily TVL, oldest first.
// GET /tvl/{protocol}
func (c *Controller) HandleTVL(w http.ResponseWriter, r *http.Request) {
	protocol := strings.TrimSpace(mux.Vars(r)["protocol"])

	points, err := c.App.Store.TVLSeries(r.Context(), protocol)
	if err != nil {
		c.queryFailed(w, "tvl", protocol, err, "no TVL data found")
		return
	}

	writeJSON(w, http.StatusOK, points)
}

type riskResponse struct {
	Protocol string      `json:"protocol"`
	Metrics  interface{} `json:"metrics"`
}

// HandleRisk returns the most recent risk metrics of a protocol, newest first.
// GET /risk/{protocol}
func (c *Controller) HandleRisk(w http.ResponseWriter, r *http.Request) {
	protocol := strings.TrimSpace(mux.Vars(r)["protocol"])

	rows, err := c.App.Store.RecentRiskMetrics(r.Context(), protocol, recentRiskLimit)
	if err != nil {
		c.queryFailed(w, "risk", protocol, err, "no risk metrics found")
		return
	}

	writeJSON(w, http.StatusOK, riskResponse{Protocol: protocol, Metrics: rows})
}

// HandleAPY returns APY observations of a protocol grouped by pool side, oldest first.
// GET /apy/{protocol}
func (c *Controller) HandleAPY(w http.ResponseWriter, r *http.Request) {
	protocol := strings.TrimSpace(mux.Vars(r)["protocol"])

	points, err := c.App.Store.APYSeries(r.Context(), protocol)
	if err != nil {
		c.queryFailed(w, "apy", protocol, err, "no APY data found")
		return
	}

	writeJSON(w, http.StatusOK, points)
}

// HandlePrices returns the recorded USD prices of an asset, oldest first.
// GET /prices/{symbol}
func (c *Controller) HandlePrices(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(mux.Vars(r)["symbol"])

	points, err := c.App.Store.PriceSeries(r.Context(), symbol)
	if err != nil {
		c.queryFailed(w, "prices", symbol, err, "no price data found")
		return
	}

	writeJSON(w, http.StatusOK, points)
}

// queryFailed maps an empty result to 404 and anything else to an opaque 500.
func (c *Controller) queryFailed(w http.ResponseWriter, endpoint, key string, err error, notFound string) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	c.App.Logger.Error("query failed",
		zap.String("endpoint", endpoint),
		zap.String("key", key),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "query failed")
}
