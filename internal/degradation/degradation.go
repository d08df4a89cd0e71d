// Package degradation loads and validates the cyclic (stacked-tank segment)
// and calendar (SOS2 breakpoint) aging parameters used by Model II and
// Model III respectively.
package degradation

import (
	"fmt"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
	"github.com/fenwick-grid/bess-scheduler/internal/battery"
	"github.com/fenwick-grid/bess-scheduler/internal/config"
)

// ENomTolerance is the absolute tolerance used to validate J*E_seg ≈ E_nom.
const ENomTolerance = 0.01 // kWh

// Cyclic holds the stacked-tank segment parameters.
type Cyclic struct {
	NumSegments int
	ESegKWh     float64
	CostPerKWh  []float64 // length NumSegments, non-strictly increasing
	Alpha       float64
	LifoEpsilon float64
}

// CalendarBreakpoint mirrors config.CalendarBreakpoint after validation.
type CalendarBreakpoint struct {
	SOCKWh float64
	Cost   float64
}

// Calendar holds the SOS2 breakpoint table.
type Calendar struct {
	Breakpoints []CalendarBreakpoint
	Alpha       float64
}

// Params bundles both degradation models; callers use whichever the model
// variant requires.
type Params struct {
	Cyclic   Cyclic
	Calendar Calendar
}

// Load validates and assembles degradation parameters for one solve. alpha
// is the degradation weight from the request; cfg supplies segment count,
// per-segment costs, and the calendar breakpoint table.
func Load(bp *battery.Params, alpha float64, cfg *config.Config) (*Params, []string, error) {
	if alpha < 0 {
		return nil, nil, fmt.Errorf("%w: alpha must be >= 0, got %f", api.ErrInvalidInput, alpha)
	}

	j := len(cfg.SegmentCosts)
	if j == 0 {
		return nil, nil, fmt.Errorf("%w: segment_costs must not be empty", api.ErrConfiguration)
	}
	eSeg := bp.ENomKWh / float64(j)

	var warnings []string
	prev := -1.0
	strictlyIncreasing := true
	for i, c := range cfg.SegmentCosts {
		if c < 0 {
			return nil, nil, fmt.Errorf("%w: segment_costs[%d] = %f must be non-negative", api.ErrInvalidInput, i, c)
		}
		if prev >= 0 {
			if c < prev {
				return nil, nil, fmt.Errorf("%w: segment_costs must be non-strictly increasing: segment %d (%f) < segment %d (%f)", api.ErrInvalidInput, i, c, i-1, prev)
			}
			if c == prev {
				strictlyIncreasing = false
			}
		}
		prev = c
	}
	if !strictlyIncreasing {
		warnings = append(warnings, "segment_costs contains non-strictly-increasing consecutive values")
	}

	if total := eSeg * float64(j); absDiff(total, bp.ENomKWh) > ENomTolerance {
		return nil, nil, fmt.Errorf("%w: J*E_seg = %f does not match E_nom = %f within %f kWh", api.ErrConfiguration, total, bp.ENomKWh, ENomTolerance)
	}

	cyclic := Cyclic{
		NumSegments: j,
		ESegKWh:     eSeg,
		CostPerKWh:  append([]float64(nil), cfg.SegmentCosts...),
		Alpha:       alpha,
		LifoEpsilon: cfg.LifoEpsilonKWh,
	}

	calBps := make([]CalendarBreakpoint, 0, len(cfg.CalendarBreakpoints))
	prevSOC := -1.0
	for i, cbp := range cfg.CalendarBreakpoints {
		if cbp.Cost < 0 {
			return nil, nil, fmt.Errorf("%w: calendar_breakpoints[%d].cost = %f must be non-negative", api.ErrInvalidInput, i, cbp.Cost)
		}
		if cbp.SOCKWh <= prevSOC {
			return nil, nil, fmt.Errorf("%w: calendar_breakpoints must have strictly increasing soc_kwh: point %d (%f) <= point %d (%f)", api.ErrInvalidInput, i, cbp.SOCKWh, i-1, prevSOC)
		}
		prevSOC = cbp.SOCKWh
		calBps = append(calBps, CalendarBreakpoint{SOCKWh: cbp.SOCKWh, Cost: cbp.Cost})
	}
	if len(calBps) < 2 {
		return nil, nil, fmt.Errorf("%w: calendar_breakpoints must span at least 2 points", api.ErrConfiguration)
	}
	if calBps[0].SOCKWh > ENomTolerance {
		return nil, nil, fmt.Errorf("%w: calendar_breakpoints must start at SOC 0, first point is %f kWh", api.ErrInvalidInput, calBps[0].SOCKWh)
	}
	if last := calBps[len(calBps)-1]; absDiff(last.SOCKWh, bp.ENomKWh) > ENomTolerance {
		return nil, nil, fmt.Errorf("%w: calendar_breakpoints must span up to E_nom (%f kWh), last point is %f kWh", api.ErrInvalidInput, bp.ENomKWh, last.SOCKWh)
	}

	calendar := Calendar{
		Breakpoints: calBps,
		Alpha:       alpha,
	}

	return &Params{Cyclic: cyclic, Calendar: calendar}, warnings, nil
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
