package domain

import "time"

// RawEvent is one observed chain event in transit through the pipeline.
type RawEvent struct {
	// Key identifies the event across endpoints (transaction signature).
	Key        string
	Slot       int64
	Logs       []string
	Payload    []byte
	Failed     bool
	Endpoint   string
	ReceivedAt time.Time
}
