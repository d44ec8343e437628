// Package selection parses the user-facing grammars that pick links and
// delays: link subsets ("1,3-5,7"), delay values ("20", "10:100") and the
// batch command forms built on top of them.
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/clusterbed/clusterbed/testbed"
)

// ParseLinkSubset expands a comma-separated list of 1-based link numbers and
// inclusive lo-hi ranges into a deduplicated ascending slice. Every number
// must lie in [1, linkCount].
func ParseLinkSubset(input string, linkCount int) ([]int, error) {
	fail := func(format string, args ...any) error {
		return &testbed.SelectionError{Input: input, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(input) == "" {
		return nil, fail("empty selection")
	}

	seen := make(map[int]bool)
	for _, raw := range strings.Split(input, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			return nil, fail("empty token")
		}

		lo, hi := 0, 0
		if left, right, isRange := strings.Cut(tok, "-"); isRange {
			var err error
			if lo, err = atoi(left); err != nil {
				return nil, fail("bad range start %q", strings.TrimSpace(left))
			}
			if hi, err = atoi(right); err != nil {
				return nil, fail("bad range end %q", strings.TrimSpace(right))
			}
			if lo > hi {
				return nil, fail("inverted range %d-%d", lo, hi)
			}
		} else {
			n, err := atoi(tok)
			if err != nil {
				return nil, fail("bad link number %q", tok)
			}
			lo, hi = n, n
		}

		if lo < 1 || hi > linkCount {
			return nil, fail("link numbers must be within 1-%d", linkCount)
		}
		for k := lo; k <= hi; k++ {
			seen[k] = true
		}
	}

	out := make([]int, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Ints(out)
	return out, nil
}

// atoi accepts only plain decimal digits: no sign, no spaces inside the token.
func atoi(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// ResolveLinks maps 1-based positions onto catalog links.
func ResolveLinks(catalog *testbed.LinkCatalog, subset []int) ([]testbed.Link, error) {
	links := make([]testbed.Link, 0, len(subset))
	for _, k := range subset {
		l, err := catalog.At(k)
		if err != nil {
			return nil, &testbed.SelectionError{Input: strconv.Itoa(k), Reason: err.Error()}
		}
		links = append(links, l)
	}
	return links, nil
}
