package marketdata

import (
	"fmt"

	"github.com/sixdouglas/suncalc"

	"github.com/fenwick-grid/bess-scheduler/internal/timeindex"
)

// daylightForecastThreshold is the fraction of the forecast's peak
// generation above which a non-daylight reading is considered suspicious
// rather than sensor noise.
const daylightForecastThreshold = 0.01

// CheckDaylight flags timesteps where the renewable forecast reports
// material generation outside the sunrise/sunset window for the given site.
// This never blocks a solve; it exists to catch a miscalibrated or
// mis-indexed renewable feed before the optimizer trades against it.
func CheckDaylight(idx *timeindex.Index, forecastKW []float64, lat, lon float64) []string {
	peak := 0.0
	for _, v := range forecastKW {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return nil
	}
	threshold := peak * daylightForecastThreshold

	var warnings []string
	daySunTimes := make(map[int]struct{ sunrise, sunset int64 })
	for t, ts := range idx.Timestamps {
		day := idx.DayID[t]
		cache, ok := daySunTimes[day]
		if !ok {
			times := suncalc.GetTimes(ts, lat, lon)
			cache = struct{ sunrise, sunset int64 }{
				sunrise: times["sunrise"].Value.Unix(),
				sunset:  times["sunset"].Value.Unix(),
			}
			daySunTimes[day] = cache
		}
		unix := ts.Unix()
		if forecastKW[t] > threshold && (unix < cache.sunrise || unix > cache.sunset) {
			warnings = append(warnings, fmt.Sprintf(
				"renewable forecast at %s (%.1f kW) falls outside daylight hours for site (%.4f, %.4f)",
				ts.Format("2006-01-02T15:04Z"), forecastKW[t], lat, lon,
			))
		}
	}
	return warnings
}
