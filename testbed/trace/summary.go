package trace

import "fmt"

// Summary aggregates an OperationTrace.
type Summary struct {
	Success  int
	Fail     int
	NoOp     int           // removals that found nothing installed (counted in Success)
	ByStage  map[Stage]int // failures per stage
	Failures []string      // one line per failure, in record order
	Delays   []float64     // delays of successfully applied links, in record order
	removal  bool
}

// OK reports whether nothing failed.
func (s *Summary) OK() bool {
	return s.Fail == 0
}

// String renders the user-facing result line.
func (s *Summary) String() string {
	if s.removal {
		return fmt.Sprintf("Removal complete: Success %d, Fail %d", s.Success, s.Fail)
	}
	return fmt.Sprintf("Settings applied: Success %d, Fail %d", s.Success, s.Fail)
}

// SummarizeApply computes apply statistics. Safe for nil traces.
func SummarizeApply(ot *OperationTrace) *Summary {
	summary := &Summary{ByStage: make(map[Stage]int)}
	if ot == nil {
		return summary
	}
	for _, r := range ot.Applies {
		if r.OK {
			summary.Success++
			summary.Delays = append(summary.Delays, float64(r.DelayMs))
			continue
		}
		summary.Fail++
		summary.ByStage[r.Stage]++
		summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %s: %s", r.Link, r.Stage, r.Err))
	}
	return summary
}

// SummarizeRemove computes removal statistics. Safe for nil traces.
func SummarizeRemove(ot *OperationTrace) *Summary {
	summary := &Summary{ByStage: make(map[Stage]int), removal: true}
	if ot == nil {
		return summary
	}
	for _, r := range ot.Removals {
		if r.OK {
			summary.Success++
			if r.NoOp {
				summary.NoOp++
			}
			continue
		}
		summary.Fail++
		summary.ByStage[r.Stage]++
		summary.Failures = append(summary.Failures, fmt.Sprintf("Cluster %d: %s: %s", r.Node, r.Stage, r.Err))
	}
	return summary
}
