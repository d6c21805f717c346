package notes

import "time"

// Recorder receives one call per finished store command.
type Recorder interface {
	RecordOperation(op string, d time.Duration, err error)
}

// NopRecorder drops every measurement.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, time.Duration, error) {}
