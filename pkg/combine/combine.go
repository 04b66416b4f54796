// Package combine sums reference-point series into wheel-axis channels and
// stitches per-step series into one continuous history.
package combine

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/pkg/types"
)

// Data sums two series sample by sample, keeping the lower series' time.
// Pairing is positional and stops at the shorter series; the time grids
// are assumed to match and are not checked.
func Data(lower, upper types.Series) types.Series {
	n := len(lower)
	if len(upper) < n {
		n = len(upper)
	}
	out := make(types.Series, n)
	for i := 0; i < n; i++ {
		out[i] = types.Sample{Time: lower[i].Time, Value: lower[i].Value + upper[i].Value}
	}
	return out
}

// AcrossSteps merges series using time as the join key. Values that share
// a time are summed. The result is sorted by time.
//
// Merging is order independent but not idempotent: feeding merged output
// back in double counts shared times.
func AcrossSteps(list []types.Series) types.Series {
	acc := make(map[float64]float64)
	for _, series := range list {
		for _, s := range series {
			acc[s.Time] += s.Value
		}
	}

	out := make(types.Series, 0, len(acc))
	for t, v := range acc {
		out = append(out, types.Sample{Time: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Availability records which reference points exist in the model
type Availability struct {
	Lower bool
	Upper bool
	Road  bool
}

// Has reports whether the role is available
func (a Availability) Has(role types.Role) bool {
	switch role {
	case types.RoleLower:
		return a.Lower
	case types.RoleUpper:
		return a.Upper
	case types.RoleRoad:
		return a.Road
	}
	return false
}

// Any reports whether at least one role is available
func (a Availability) Any() bool {
	return a.Lower || a.Upper || a.Road
}

// StepData holds the raw channels extracted from one step, per role
type StepData struct {
	Name string
	Raw  map[types.Role]map[types.Code]types.Series
}

// Derive builds the derived channels of one step.
//
// With both rim points available each load channel is LOWER+UPPER and is
// skipped when either side is missing. With a single rim point its series
// pass through. Road displacements always pass through.
func Derive(step StepData, avail Availability, log *logrus.Entry) map[types.Channel]types.Series {
	out := make(map[types.Channel]types.Series)
	lower := step.Raw[types.RoleLower]
	upper := step.Raw[types.RoleUpper]

	switch {
	case avail.Lower && avail.Upper:
		for _, code := range types.LoadCodes {
			l, u := lower[code], upper[code]
			if len(l) == 0 || len(u) == 0 {
				log.WithFields(logrus.Fields{
					"step":    step.Name,
					"channel": code.Channel().String(),
				}).Warnf("Skipping %s for %s due to missing LOWER/UPPER data", code.Channel(), step.Name)
				continue
			}
			out[code.Channel()] = Data(l, u)
		}

	case avail.Lower || avail.Upper:
		single := lower
		if avail.Upper {
			single = upper
		}
		for _, code := range types.LoadCodes {
			if s := single[code]; len(s) > 0 {
				out[code.Channel()] = s
			}
		}
	}

	if avail.Road {
		road := step.Raw[types.RoleRoad]
		for _, code := range types.DisplacementCodes {
			if s := road[code]; len(s) > 0 {
				out[code.Channel()] = s
			}
		}
	}

	return out
}

// Accumulator collects each step's derived channels for the final merge
type Accumulator struct {
	steps map[types.Channel][]types.Series
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{steps: make(map[types.Channel][]types.Series)}
}

// Add appends one step's derived channels
func (a *Accumulator) Add(derived map[types.Channel]types.Series) {
	for ch, s := range derived {
		a.steps[ch] = append(a.steps[ch], s)
	}
}

// Steps returns how many step series were collected for a channel
func (a *Accumulator) Steps(ch types.Channel) int {
	return len(a.steps[ch])
}

// Merge combines every channel across steps
func (a *Accumulator) Merge() map[types.Channel]types.Series {
	out := make(map[types.Channel]types.Series, len(a.steps))
	for ch, list := range a.steps {
		out[ch] = AcrossSteps(list)
	}
	return out
}
