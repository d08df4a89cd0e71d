package marketdata

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

func buildIndex(t *testing.T, hours int) *timeindex.Index {
	t.Helper()
	idx, err := timeindex.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), hours)
	if err != nil {
		t.Fatalf("timeindex.New: %v", err)
	}
	return idx
}

func series(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBuild_ZeroMeansInactive(t *testing.T) {
	idx := buildIndex(t, 24)
	n := idx.NumSteps()
	afrrPos := series(n, 50)
	afrrPos[0] = 0

	req := &api.OptimizationRequest{
		MarketPrices: api.MarketPrices{
			DayAhead:        series(n, 20),
			AfrrEnergyPos:   afrrPos,
			AfrrEnergyNeg:   series(n, 0),
			Fcr:             series(idx.NumBlocks, 0),
			AfrrCapacityPos: series(idx.NumBlocks, 0),
			AfrrCapacityNeg: series(idx.NumBlocks, 0),
		},
	}

	table, err := Build(req, idx, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !math.IsNaN(table.PriceAfrrEnergyPos[0]) {
		t.Errorf("PriceAfrrEnergyPos[0] = %v, want NaN", table.PriceAfrrEnergyPos[0])
	}
	if table.PriceAfrrEnergyPos[1] != 50 {
		t.Errorf("PriceAfrrEnergyPos[1] = %v, want 50", table.PriceAfrrEnergyPos[1])
	}
	for i, v := range table.PriceAfrrEnergyNeg {
		if !math.IsNaN(v) {
			t.Fatalf("PriceAfrrEnergyNeg[%d] = %v, want NaN (all-zero input)", i, v)
		}
	}
	if table.HasRenewable {
		t.Errorf("HasRenewable = true, want false (no renewable forecast supplied)")
	}
}

func TestBuild_RejectsWrongLength(t *testing.T) {
	idx := buildIndex(t, 24)
	n := idx.NumSteps()
	req := &api.OptimizationRequest{
		MarketPrices: api.MarketPrices{
			DayAhead:        series(n-1, 20), // wrong length
			AfrrEnergyPos:   series(n, 0),
			AfrrEnergyNeg:   series(n, 0),
			Fcr:             series(idx.NumBlocks, 0),
			AfrrCapacityPos: series(idx.NumBlocks, 0),
			AfrrCapacityNeg: series(idx.NumBlocks, 0),
		},
	}
	_, err := Build(req, idx, config.DefaultConfig())
	if !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("Build error = %v, want wrapping api.ErrInvalidInput", err)
	}
}

func TestBuild_RejectsEmptyBlockArray(t *testing.T) {
	idx := buildIndex(t, 24)
	n := idx.NumSteps()
	req := &api.OptimizationRequest{
		MarketPrices: api.MarketPrices{
			DayAhead:        series(n, 20),
			AfrrEnergyPos:   series(n, 0),
			AfrrEnergyNeg:   series(n, 0),
			Fcr:             nil,
			AfrrCapacityPos: series(idx.NumBlocks, 0),
			AfrrCapacityNeg: series(idx.NumBlocks, 0),
		},
	}
	_, err := Build(req, idx, config.DefaultConfig())
	if !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("Build error = %v, want wrapping api.ErrInvalidInput", err)
	}
}

func TestBuild_RenewableEnabledOnlyWhenNotAllNaN(t *testing.T) {
	idx := buildIndex(t, 24)
	n := idx.NumSteps()
	base := api.OptimizationRequest{
		MarketPrices: api.MarketPrices{
			DayAhead:        series(n, 20),
			AfrrEnergyPos:   series(n, 0),
			AfrrEnergyNeg:   series(n, 0),
			Fcr:             series(idx.NumBlocks, 0),
			AfrrCapacityPos: series(idx.NumBlocks, 0),
			AfrrCapacityNeg: series(idx.NumBlocks, 0),
		},
	}

	allNaNReq := base
	allNaNReq.RenewableGenerationKW = series(n, math.NaN())
	table, err := Build(&allNaNReq, idx, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if table.HasRenewable {
		t.Errorf("HasRenewable = true for all-NaN forecast, want false")
	}

	withGen := base
	withGen.RenewableGenerationKW = series(n, 100)
	table2, err := Build(&withGen, idx, config.DefaultConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !table2.HasRenewable {
		t.Errorf("HasRenewable = false, want true")
	}
}
