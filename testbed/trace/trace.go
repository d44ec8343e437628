package trace

// OperationTrace collects outcome records for one delay operation.
type OperationTrace struct {
	RunID    string
	Applies  []ApplyRecord
	Removals []RemoveRecord
}

// NewOperationTrace creates an OperationTrace ready for recording.
func NewOperationTrace(runID string) *OperationTrace {
	return &OperationTrace{
		RunID:    runID,
		Applies:  make([]ApplyRecord, 0),
		Removals: make([]RemoveRecord, 0),
	}
}

// RecordApply appends a link outcome.
func (ot *OperationTrace) RecordApply(record ApplyRecord) {
	ot.Applies = append(ot.Applies, record)
}

// RecordRemove appends a node outcome.
func (ot *OperationTrace) RecordRemove(record RemoveRecord) {
	ot.Removals = append(ot.Removals, record)
}
