package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clusterbed/clusterbed/testbed"
)

func TestOperationTrace_RecordApply_AppendsRecord(t *testing.T) {
	// GIVEN an empty trace
	ot := NewOperationTrace("run-1")

	// WHEN a link outcome is recorded
	ot.RecordApply(ApplyRecord{Link: testbed.NewLink(2, 0), DelayMs: 15, OK: true})

	// THEN the trace holds it unchanged
	assert.Equal(t, "run-1", ot.RunID)
	assert.Len(t, ot.Applies, 1)
	assert.Equal(t, testbed.Link{A: 0, B: 2}, ot.Applies[0].Link)
	assert.Empty(t, ot.Removals)
}

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	apply := SummarizeApply(nil)
	assert.Equal(t, 0, apply.Success)
	assert.Equal(t, "Settings applied: Success 0, Fail 0", apply.String())
	assert.True(t, apply.OK())

	remove := SummarizeRemove(nil)
	assert.Equal(t, "Removal complete: Success 0, Fail 0", remove.String())
}

func TestSummarizeApply_CountsSuccessAndFailureByStage(t *testing.T) {
	// GIVEN two successes and two failures at different stages
	ot := NewOperationTrace("")
	ot.RecordApply(ApplyRecord{Link: testbed.NewLink(0, 1), DelayMs: 10, OK: true})
	ot.RecordApply(ApplyRecord{Link: testbed.NewLink(0, 2), DelayMs: 30, OK: true})
	ot.RecordApply(ApplyRecord{Link: testbed.NewLink(1, 2), Stage: StageResolve, Err: "ip for cluster 2 not found"})
	ot.RecordApply(ApplyRecord{Link: testbed.NewLink(2, 3), Stage: StageCancelled, Err: "context canceled"})

	// WHEN summarized
	s := SummarizeApply(ot)

	// THEN counts, stages and delays match
	assert.Equal(t, 2, s.Success)
	assert.Equal(t, 2, s.Fail)
	assert.False(t, s.OK())
	assert.Equal(t, map[Stage]int{StageResolve: 1, StageCancelled: 1}, s.ByStage)
	assert.Equal(t, []float64{10, 30}, s.Delays)
	assert.Equal(t, "Cluster 1 - Cluster 2: resolve: ip for cluster 2 not found", s.Failures[0])
	assert.Equal(t, "Settings applied: Success 2, Fail 2", s.String())
}

func TestSummarizeRemove_NoOpCountsAsSuccess(t *testing.T) {
	ot := NewOperationTrace("")
	ot.RecordRemove(RemoveRecord{Node: 0, OK: true})
	ot.RecordRemove(RemoveRecord{Node: 1, OK: true, NoOp: true})
	ot.RecordRemove(RemoveRecord{Node: 2, Stage: StageAvailable, Err: "tc missing"})

	s := SummarizeRemove(ot)
	assert.Equal(t, 2, s.Success)
	assert.Equal(t, 1, s.NoOp)
	assert.Equal(t, 1, s.Fail)
	assert.Equal(t, "Removal complete: Success 2, Fail 1", s.String())
}
