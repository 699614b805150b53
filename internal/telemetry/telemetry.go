package telemetry

import (
	"expvar"
	"log"
)

// Provider is the usage-analytics collaborator. Event is
// fire-and-forget: nothing is consumed back and failures are
// invisible to callers.
type Provider interface {
	Event(name string, params map[string]any)
}

// Recorder counts events by name in an expvar map. Events are fed
// through a buffered channel and dropped when it is full so callers
// never block on analytics.
type Recorder struct {
	log       *log.Logger
	vars      *expvar.Map
	eventChan chan event
	done      chan struct{}
}

type event struct {
	name   string
	params map[string]any
}

func NewRecorder(logger *log.Logger) *Recorder {
	return &Recorder{
		log:       logger,
		vars:      new(expvar.Map).Init(),
		eventChan: make(chan event, 512),
		done:      make(chan struct{}),
	}
}

func (r *Recorder) Event(name string, params map[string]any) {
	select {
	case r.eventChan <- event{name: name, params: params}:
	default:
		// analytics must never block or backpressure the caller
	}
}

// Count returns the number of recorded events with the given name.
func (r *Recorder) Count(name string) int64 {
	v := r.vars.Get(name)
	if v == nil {
		return 0
	}
	return v.(*expvar.Int).Value()
}

// Vars exposes the counters, e.g. for a debug endpoint.
func (r *Recorder) Vars() *expvar.Map {
	return r.vars
}

func (r *Recorder) Run() {
	go r.record()
}

func (r *Recorder) record() {
	defer close(r.done)
	for ev := range r.eventChan {
		r.vars.Add(ev.name, 1)
		if r.log != nil {
			r.log.Printf("telemetry: %s %v", ev.name, ev.params)
		}
	}
}

func (r *Recorder) Stop() {
	close(r.eventChan)
	<-r.done
}

// Nop discards all events.
type Nop struct{}

func (Nop) Event(string, map[string]any) {}
