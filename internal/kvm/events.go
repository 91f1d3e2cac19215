package kvm

import eventemitter "github.com/vansante/go-event-emitter"

// Events emitted by the orchestrator.
//
// Step events carry (host string, volumeID string, step Step, elapsed
// time.Duration); StepFailedEvent appends the error. HostStateEvent carries
// (host string, state HostState).
const (
	StepStartedEvent   eventemitter.EventType = "step-started"
	StepCompletedEvent eventemitter.EventType = "step-completed"
	StepFailedEvent    eventemitter.EventType = "step-failed"
	HostStateEvent     eventemitter.EventType = "host-state"
)
