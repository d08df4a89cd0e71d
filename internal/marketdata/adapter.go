// Package marketdata normalizes a raw market-price bundle and an optional
// renewable forecast into the canonical per-timestep table the Model
// Builder consumes, applying the zero-means-inactive rule for aFRR energy
// prices along the way.
package marketdata

import (
	"fmt"
	"math"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

// Table is the canonical per-timestep/per-block table required by the Model
// Builder (C5). Per-timestep slices have length Index.NumSteps(); per-block
// slices have length Index.NumBlocks. Block prices are intentionally not
// forward-filled to the 15-minute grid for MILP consumption — the builder
// indexes them by block id via Index.BlockID[t].
type Table struct {
	Index *timeindex.Index

	PriceDayAhead      []float64 // EUR/MWh, NaN-free
	PriceAfrrEnergyPos []float64 // EUR/MWh, NaN = market not activated
	PriceAfrrEnergyNeg []float64 // EUR/MWh, NaN = market not activated

	PriceFcr     []float64 // EUR/MW per 4h block, len NumBlocks
	PriceAfrrPos []float64 // EUR/MW per 4h block, len NumBlocks
	PriceAfrrNeg []float64 // EUR/MW per 4h block, len NumBlocks

	WAfrrPos []float64 // activation-probability weight in [0,1]
	WAfrrNeg []float64

	HasRenewable        bool
	RenewableForecastKW []float64 // len NumSteps, only meaningful if HasRenewable

	// Diagnostics accumulates non-fatal warnings (negative aFRR prices, the
	// daylight sanity check). Fatal problems are returned as errors instead.
	Diagnostics []string
}

// Build assembles the canonical table from a raw request, the precomputed
// time index, and the active configuration (used only to resolve the
// aFRR energy activation weights).
func Build(req *api.OptimizationRequest, idx *timeindex.Index, cfg *config.Config) (*Table, error) {
	n := idx.NumSteps()
	mp := req.MarketPrices

	if err := requireLen("market_prices.day_ahead", mp.DayAhead, n); err != nil {
		return nil, err
	}
	if err := requireLen("market_prices.afrr_energy_pos", mp.AfrrEnergyPos, n); err != nil {
		return nil, err
	}
	if err := requireLen("market_prices.afrr_energy_neg", mp.AfrrEnergyNeg, n); err != nil {
		return nil, err
	}
	if err := requireNonEmptyBlock("market_prices.fcr", mp.Fcr, idx.NumBlocks); err != nil {
		return nil, err
	}
	if err := requireNonEmptyBlock("market_prices.afrr_capacity_pos", mp.AfrrCapacityPos, idx.NumBlocks); err != nil {
		return nil, err
	}
	if err := requireNonEmptyBlock("market_prices.afrr_capacity_neg", mp.AfrrCapacityNeg, idx.NumBlocks); err != nil {
		return nil, err
	}

	t := &Table{
		Index:        idx,
		PriceDayAhead: append([]float64(nil), mp.DayAhead...),
		PriceFcr:      append([]float64(nil), mp.Fcr...),
		PriceAfrrPos:  append([]float64(nil), mp.AfrrCapacityPos...),
		PriceAfrrNeg:  append([]float64(nil), mp.AfrrCapacityNeg...),
	}

	// Zero-means-inactive: a literal 0 price encodes "market not activated",
	// not "free energy". Converting to NaN here is the single point in the
	// pipeline where this happens; the builder downstream forces the
	// corresponding power variable to zero whenever the price is NaN.
	t.PriceAfrrEnergyPos = zeroToNaN(mp.AfrrEnergyPos)
	t.PriceAfrrEnergyNeg = zeroToNaN(mp.AfrrEnergyNeg)

	wPos, wNeg := 1.0, 1.0
	if cfg != nil {
		wPos, wNeg = cfg.ActivationWeights()
	}
	t.WAfrrPos = constantSeries(n, wPos)
	t.WAfrrNeg = constantSeries(n, wNeg)

	if len(req.RenewableGenerationKW) > 0 {
		if err := requireLen("renewable_generation_kw", req.RenewableGenerationKW, n); err != nil {
			return nil, err
		}
		if !allNaN(req.RenewableGenerationKW) {
			t.HasRenewable = true
			t.RenewableForecastKW = append([]float64(nil), req.RenewableGenerationKW...)
		}
	}

	t.Diagnostics = append(t.Diagnostics, warnNegativePrices(t.PriceAfrrEnergyPos, "afrr_energy_pos")...)
	t.Diagnostics = append(t.Diagnostics, warnNegativePrices(t.PriceAfrrEnergyNeg, "afrr_energy_neg")...)

	if req.SiteLatitude != nil && req.SiteLongitude != nil && t.HasRenewable {
		t.Diagnostics = append(t.Diagnostics, CheckDaylight(idx, t.RenewableForecastKW, *req.SiteLatitude, *req.SiteLongitude)...)
	}

	return t, nil
}

func requireLen(name string, xs []float64, want int) error {
	if len(xs) != want {
		return fmt.Errorf("%w: %s has length %d, want %d", api.ErrInvalidInput, name, len(xs), want)
	}
	return nil
}

func requireNonEmptyBlock(name string, xs []float64, want int) error {
	if len(xs) == 0 {
		return fmt.Errorf("%w: %s must not be empty", api.ErrInvalidInput, name)
	}
	if len(xs) != want {
		return fmt.Errorf("%w: %s has length %d, want %d (blocks in horizon)", api.ErrInvalidInput, name, len(xs), want)
	}
	return nil
}

func zeroToNaN(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if x == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = x
		}
	}
	return out
}

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func allNaN(xs []float64) bool {
	for _, x := range xs {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}

func warnNegativePrices(xs []float64, label string) []string {
	for _, x := range xs {
		if !math.IsNaN(x) && x < 0 {
			return []string{fmt.Sprintf("price_%s contains negative values; may be legitimate but double-check the feed", label)}
		}
	}
	return nil
}
