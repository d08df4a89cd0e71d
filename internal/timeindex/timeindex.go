// Package timeindex builds the 15-minute time axis, the 4-hour
// capacity-block axis, and the day axis that every other component of the
// scheduling kernel indexes against.
package timeindex

import (
	"fmt"
	"time"

	"github.com/fenwick-grid/bess-scheduler/internal/api"
)

// Delta is the fixed timestep of the planning grid.
const Delta = 15 * time.Minute

// StepsPerHour is the number of Delta steps in one hour.
const StepsPerHour = 4

// StepsPerBlock is the number of Delta steps in one 4-hour capacity block.
const StepsPerBlock = 16

// BlocksPerDay is the number of 4-hour capacity blocks in a calendar day.
const BlocksPerDay = 6

// Index is the precomputed time/block/day axis for one solve (a standalone
// OptimizationRequest or a single MPC window). Block and day ids are local
// to this Index's own Start — each solve is an independent build, so there
// is no shared epoch across MPC iterations.
type Index struct {
	Start        time.Time
	HorizonHours int
	Timestamps   []time.Time
	BlockID      []int
	DayID        []int
	NumBlocks    int
	NumDays      int

	blockToSteps map[int][]int
	dayToSteps   map[int][]int
}

// New builds the time/block/day axis for a horizon of horizonHours starting
// at start. horizonHours must be at least 4 (one full capacity block) — a
// shorter horizon can never satisfy a capacity-market MinBid or reservation
// constraint, so C5 would be building a model with dead block variables.
func New(start time.Time, horizonHours int) (*Index, error) {
	if horizonHours <= 0 {
		return nil, fmt.Errorf("%w: horizon_hours must be positive, got %d", api.ErrInvalidInput, horizonHours)
	}
	if horizonHours < 4 {
		return nil, fmt.Errorf("%w: horizon_hours must be at least 4 (one full capacity block), got %d", api.ErrInvalidInput, horizonHours)
	}

	numSteps := horizonHours * StepsPerHour
	idx := &Index{
		Start:        start,
		HorizonHours: horizonHours,
		Timestamps:   make([]time.Time, numSteps),
		BlockID:      make([]int, numSteps),
		DayID:        make([]int, numSteps),
		blockToSteps: make(map[int][]int),
		dayToSteps:   make(map[int][]int),
	}

	startDayOfYear := start.UTC().YearDay()
	startYear := start.UTC().Year()

	for t := 0; t < numSteps; t++ {
		ts := start.Add(time.Duration(t) * Delta)
		idx.Timestamps[t] = ts

		utc := ts.UTC()
		dayOfYear := utc.YearDay()
		// Crossing a year boundary within the horizon is rare but not
		// impossible; approximate absolute day offset via Unix day count
		// instead of YearDay() once the year changes.
		var dayOffset int
		if utc.Year() == startYear {
			dayOffset = dayOfYear - startDayOfYear
		} else {
			dayOffset = int(utc.Truncate(24*time.Hour).Sub(start.UTC().Truncate(24*time.Hour)).Hours() / 24)
		}

		blockOfDay := utc.Hour() / 4
		blockID := dayOffset*BlocksPerDay + blockOfDay

		idx.BlockID[t] = blockID
		idx.DayID[t] = dayOffset
		idx.blockToSteps[blockID] = append(idx.blockToSteps[blockID], t)
		idx.dayToSteps[dayOffset] = append(idx.dayToSteps[dayOffset], t)
	}

	idx.NumBlocks = idx.BlockID[numSteps-1] + 1
	idx.NumDays = idx.DayID[numSteps-1] + 1

	return idx, nil
}

// NumSteps returns the number of 15-minute timesteps in the horizon.
func (idx *Index) NumSteps() int {
	return len(idx.Timestamps)
}

// StepsInBlock returns the (ascending) timestep indices belonging to block
// b, or nil if b is out of range.
func (idx *Index) StepsInBlock(b int) []int {
	return idx.blockToSteps[b]
}

// StepsInDay returns the (ascending) timestep indices belonging to day d.
func (idx *Index) StepsInDay(d int) []int {
	return idx.dayToSteps[d]
}
