// Package battery resolves the effective physical battery parameters used
// by every model variant: capacity, C-rate-scaled power, round-trip
// efficiency split, and SOC bounds.
package battery

import (
	"fmt"
	"math"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
)

// defaultRoundTripEfficiency is applied when the request does not supply
// one explicitly; the charge/discharge split is its square root so that the
// round trip (charge then discharge) reproduces it exactly.
const defaultRoundTripEfficiency = 0.95

// Params are the resolved physical parameters for one solve. All power
// units are kW, energy units kWh.
type Params struct {
	ENomKWh    float64
	PMaxKW     float64
	EtaCh      float64
	EtaDis     float64
	SOCMin     float64
	SOCMax     float64
	ESocInit   float64 // kWh
}

// Resolve validates and derives Params from an OptimizationRequest.
// C-rate must be in (0, 2]; the spec names {0.25, 0.33, 0.5} as the typical
// menu but does not forbid other values in range.
func Resolve(req *api.OptimizationRequest) (*Params, error) {
	if req.BatteryCapacityKWh <= 0 {
		return nil, fmt.Errorf("%w: battery_capacity_kwh must be positive, got %f", api.ErrInvalidInput, req.BatteryCapacityKWh)
	}
	if req.CRate <= 0 || req.CRate > 2 {
		return nil, fmt.Errorf("%w: c_rate must be in (0, 2], got %f", api.ErrInvalidInput, req.CRate)
	}

	socMin, socMax := req.SOCMin, req.SOCMax
	if socMin == 0 && socMax == 0 {
		socMax = 1.0
	}
	if socMin < 0 || socMax > 1 || socMin >= socMax {
		return nil, fmt.Errorf("%w: soc_min (%f) and soc_max (%f) must satisfy 0 <= soc_min < soc_max <= 1", api.ErrInvalidInput, socMin, socMax)
	}

	if req.InitialSOC < socMin || req.InitialSOC > socMax {
		return nil, fmt.Errorf("%w: initial_soc (%f) must be within [soc_min, soc_max] = [%f, %f]", api.ErrInvalidInput, req.InitialSOC, socMin, socMax)
	}

	etaRT := req.Efficiency
	if etaRT <= 0 {
		etaRT = defaultRoundTripEfficiency
	}
	if etaRT > 1 {
		return nil, fmt.Errorf("%w: efficiency must be in (0, 1], got %f", api.ErrInvalidInput, etaRT)
	}
	etaLeg := math.Sqrt(etaRT)

	return &Params{
		ENomKWh:  req.BatteryCapacityKWh,
		PMaxKW:   req.CRate * req.BatteryCapacityKWh,
		EtaCh:    etaLeg,
		EtaDis:   etaLeg,
		SOCMin:   socMin,
		SOCMax:   socMax,
		ESocInit: req.InitialSOC * req.BatteryCapacityKWh,
	}, nil
}
