package fanout

// Aggregate folds batch outcomes into the caller-facing summary. planned is
// the number of batches built; outcomes may be shorter when dispatch stopped
// early.
func Aggregate(planned int, outcomes []Outcome) Summary {
	s := Summary{
		Accepted:   true,
		BatchCount: planned,
		Results:    make([]Outcome, 0, len(outcomes)),
		Incomplete: len(outcomes) < planned,
	}
	for _, o := range outcomes {
		if o.Succeeded() {
			s.RecipientsSent += o.Recipients
		}
		s.Results = append(s.Results, o)
	}
	return s
}
