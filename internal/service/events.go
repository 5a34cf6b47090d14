package service

import "time"

type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventBatchStarted    EventType = "batch_started"
	EventBatchSplit      EventType = "batch_split"
	EventBatchRetrying   EventType = "batch_retrying"
	EventBatchCompleted  EventType = "batch_completed"
	EventBatchFailed     EventType = "batch_failed"
	EventRecordAbandoned EventType = "record_abandoned"
	EventRunCancelled    EventType = "run_cancelled"
	EventRunMerged       EventType = "run_merged"
)

// Event reports progress of a run. Batch is 1-based; First and Last are the
// sequence numbers of the records involved.
type Event struct {
	Type      EventType `json:"type"`
	Batch     int       `json:"batch,omitempty"`
	First     int       `json:"first,omitempty"`
	Last      int       `json:"last,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer receives run events. Implementations must be safe for
// concurrent use: batches report from several goroutines.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}
