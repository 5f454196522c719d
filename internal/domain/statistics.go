package domain

// Statistics aggregates dispatch outcomes across runs.
type Statistics struct {
	TotalCalls      int64   `json:"totalCalls"`
	SuccessfulCalls int64   `json:"successfulCalls"`
	FailedCalls     int64   `json:"failedCalls"`
	AverageDuration float64 `json:"averageDuration"`
	// TimedCalls is the number of dispatches contributing to AverageDuration.
	TimedCalls int64 `json:"timedCalls"`
}

// Record folds one finished dispatch into the counters. The average is a
// running mean over dispatches with a non-zero duration.
func (s Statistics) Record(result CallResult) Statistics {
	s.TotalCalls++
	if result.Connected {
		s.SuccessfulCalls++
	} else {
		s.FailedCalls++
	}
	if result.Duration > 0 {
		s.TimedCalls++
		s.AverageDuration += (float64(result.Duration) - s.AverageDuration) / float64(s.TimedCalls)
	}
	return s
}
