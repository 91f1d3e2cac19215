// Package metrics records remote command and pipeline step metrics for a
// kvmigrate run and can dump them for the node-exporter textfile collector.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	eventemitter "github.com/vansante/go-event-emitter"

	"github.com/javanstorm/kvmigrate/internal/kvm"
	"github.com/javanstorm/kvmigrate/internal/remote"
)

const (
	subsystem = "kvmigrate"

	remoteCommandsTotal  = "remote_commands_total"
	uploadsTotal         = "uploads_total"
	stepsTotal           = "pipeline_steps_total"
	stepDurationSeconds  = "pipeline_step_duration_seconds"
	hostTransitionsTotal = "host_state_transitions_total"

	// Labels
	resultLabel = "result"
	stepLabel   = "step"
	stateLabel  = "state"

	// Results
	ResultOK        = "ok"
	ResultCommand   = "command_error"
	ResultTransport = "transport_error"
	ResultFailed    = "failed"
)

// Recorder owns a private registry with the kvmigrate metrics.
type Recorder struct {
	registry *prometheus.Registry

	commands    *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepSeconds *prometheus.HistogramVec
	hostStates  *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      remoteCommandsTotal,
				Help:      "number of remote commands run, by result",
			},
			[]string{resultLabel},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      uploadsTotal,
				Help:      "number of script uploads, by result",
			},
			[]string{resultLabel},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      stepsTotal,
				Help:      "number of finished conversion pipeline steps",
			},
			[]string{stepLabel, resultLabel},
		),
		stepSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      stepDurationSeconds,
				Help:      "duration of conversion pipeline steps",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{stepLabel},
		),
		hostStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      hostTransitionsTotal,
				Help:      "number of host lifecycle transitions, by state entered",
			},
			[]string{stateLabel},
		),
	}
	r.registry.MustRegister(r.commands, r.uploads, r.steps, r.stepSeconds, r.hostStates)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current values in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}

// Capture is an eventemitter capturer feeding step and host state metrics.
func (r *Recorder) Capture(event eventemitter.EventType, arguments ...interface{}) {
	switch event {
	case kvm.StepCompletedEvent, kvm.StepFailedEvent:
		if len(arguments) < 4 {
			return
		}
		step, _ := arguments[2].(kvm.Step)
		elapsed, _ := arguments[3].(time.Duration)
		result := ResultOK
		if event == kvm.StepFailedEvent {
			result = ResultFailed
		}
		r.steps.With(prometheus.Labels{stepLabel: string(step), resultLabel: result}).Inc()
		r.stepSeconds.With(prometheus.Labels{stepLabel: string(step)}).Observe(elapsed.Seconds())
	case kvm.HostStateEvent:
		if len(arguments) < 2 {
			return
		}
		if state, ok := arguments[1].(kvm.HostState); ok {
			r.hostStates.With(prometheus.Labels{stateLabel: state.String()}).Inc()
		}
	}
}

// InstrumentExecutor wraps next so every command and upload is counted.
func (r *Recorder) InstrumentExecutor(next remote.Executor) remote.Executor {
	return &instrumentedExecutor{next: next, r: r}
}

type instrumentedExecutor struct {
	next remote.Executor
	r    *Recorder
}

func (e *instrumentedExecutor) Run(ctx context.Context, target remote.Target, req remote.Request) (string, error) {
	out, err := e.next.Run(ctx, target, req)
	e.r.commands.With(prometheus.Labels{resultLabel: resultOf(err)}).Inc()
	return out, err
}

func (e *instrumentedExecutor) Upload(ctx context.Context, target remote.Target, u remote.Upload) error {
	err := e.next.Upload(ctx, target, u)
	e.r.uploads.With(prometheus.Labels{resultLabel: resultOf(err)}).Inc()
	return err
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case remote.IsCommand(err):
		return ResultCommand
	case remote.IsTransport(err):
		return ResultTransport
	default:
		return ResultFailed
	}
}
