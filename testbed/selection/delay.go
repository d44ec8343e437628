package selection

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/clusterbed/clusterbed/testbed"
)

// DelaySpec is either a fixed delay or an inclusive random range, in ms.
// For a fixed delay Min == Max and Random is false.
type DelaySpec struct {
	Min    int
	Max    int
	Random bool
}

// Fixed returns a fixed-delay spec.
func Fixed(ms int) DelaySpec {
	return DelaySpec{Min: ms, Max: ms}
}

// Range returns a random-range spec. Callers are expected to pass min <= max.
func Range(min, max int) DelaySpec {
	return DelaySpec{Min: min, Max: max, Random: true}
}

// MaxDelayMs is the largest accepted delay. netem keeps delays as 32-bit
// microsecond counts, so nothing above this can be installed.
const MaxDelayMs = 4294967

// ParseDelaySpec parses "N" or "min:max". Values must be integers within
// [0, MaxDelayMs].
func ParseDelaySpec(input string) (DelaySpec, error) {
	s := strings.TrimSpace(input)
	fail := func(reason string) error {
		return &testbed.DelayRangeError{Input: input, Reason: reason}
	}

	if left, right, isRange := strings.Cut(s, ":"); isRange {
		lo, err := parseMillis(left)
		if err != nil {
			return DelaySpec{}, fail("range minimum: " + err.Error())
		}
		hi, err := parseMillis(right)
		if err != nil {
			return DelaySpec{}, fail("range maximum: " + err.Error())
		}
		if lo > hi {
			return DelaySpec{}, fail(fmt.Sprintf("minimum %d exceeds maximum %d", lo, hi))
		}
		return Range(lo, hi), nil
	}

	ms, err := parseMillis(s)
	if err != nil {
		return DelaySpec{}, fail(err.Error())
	}
	return Fixed(ms), nil
}

func parseMillis(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	if n > MaxDelayMs {
		return 0, fmt.Errorf("%d exceeds the maximum of %d ms", n, MaxDelayMs)
	}
	return n, nil
}

// Draw returns one delay. Fixed specs never touch rng.
func (d DelaySpec) Draw(rng *rand.Rand) int {
	if !d.Random || d.Min == d.Max {
		return d.Min
	}
	return d.Min + rng.Intn(d.Max-d.Min+1)
}

// String renders the spec in its input grammar.
func (d DelaySpec) String() string {
	if d.Random {
		return fmt.Sprintf("%d:%d", d.Min, d.Max)
	}
	return strconv.Itoa(d.Min)
}
