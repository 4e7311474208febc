// Package pipeline drives the per-event processing loop: for every event in
// an input packet, it runs the BA filter, the refractory check, the
// plane-fit estimator, and regularization, then hands off flow-annotated
// events to the background writer. It is the composition root for event,
// flow, regularize, adaptive, output, and telemetry.
//
// A Pipeline is not safe for concurrent use by more than one goroutine: it
// owns the event buffer, the last-timestamp map, and the adaptive filter
// state exclusively, by design (spec §5) — the only cross-goroutine
// boundary is the output handoff.
package pipeline

import (
	"fmt"
	"log"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/opticflow/adaptive"
	"github.com/banshee-data/opticflow/event"
	"github.com/banshee-data/opticflow/flow"
	"github.com/banshee-data/opticflow/output"
	"github.com/banshee-data/opticflow/regularize"
	"github.com/banshee-data/opticflow/telemetry"
)

// PacketEvent is one event within an input Packet, carrying the validity
// flag the pipeline reads and mutates per spec §6.
type PacketEvent struct {
	Event event.Event
	Valid bool
}

// Packet is the pipeline's entry-point unit of work: a sequence of polarity
// events with per-event validity, plus the source id the harness tags them
// with.
type Packet struct {
	EventSource int16
	Events      []PacketEvent
}

// Stats reports the outcome of the most recently processed packet.
type Stats struct {
	FlowEventsThisPacket int
	DelayMs              float64
	Rate                 float64 // median of recent smoothed (EWMA) flow-rate estimates, events/second
	Tau                  float64
}

// Pipeline is the per-event driver described in spec §4.5.
type Pipeline struct {
	id uuid.UUID

	width, height int
	opts          *Options

	buf *event.Buffer
	ltm *event.LastTimestampMap
	ba  *adaptive.Filter

	flowParams flow.Params
	regParams  regularize.Params

	handoff *output.Handoff
	sinkSet []output.Sink

	meanU, meanV float64 // smoothed mean flow, IIR
	delay        telemetry.DelayEstimate
	rateTracker  *telemetry.RateTracker

	lastStats Stats
}

// flowBufferDepth is the reference's fixed per-pixel history size (K=3).
const flowBufferDepth = 3

// ringCapacity is the reference's output ring capacity.
const ringCapacity = output.DefaultCapacity

// meanFlowAlpha is the IIR smoothing factor for the status telemetry's mean
// flow vector.
const meanFlowAlpha = 0.1

// New constructs a Pipeline for a sensor of the given extents, applying
// opts (or Defaults() if nil). Construction fails only on invalid options;
// it never touches I/O — sinks are wired in via StartOutput.
func New(width, height int, opts *Options) (*Pipeline, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pipeline: invalid sensor extents %dx%d", width, height)
	}
	if opts == nil {
		opts = Defaults()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		id:          uuid.New(),
		width:       width,
		height:      height,
		buf:         event.NewBuffer(width, height, flowBufferDepth),
		ltm:         event.NewLastTimestampMap(width, height),
		rateTracker: telemetry.NewRateTracker(64),
	}
	p.applyOptions(opts)
	return p, nil
}

// ID returns the pipeline's session identifier.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// applyOptions derives the component parameter structs from opts and
// (re)builds the adaptive filter; it does not touch the event buffer or
// last-timestamp map, which persist across reconfiguration.
func (p *Pipeline) applyOptions(opts *Options) {
	p.opts = opts

	p.flowParams = flow.Params{
		DtMin: *opts.FlowDtMinUs,
		DtMax: *opts.FlowDtMaxUs,
		Dx:    *opts.FlowDx,
		Thr1:  *opts.FlowThr1,
		Thr2:  *opts.FlowThr2,
	}
	p.regParams = regularize.Params{
		DtMax:          *opts.FilterDtMaxUs,
		Dx:             *opts.FilterDx,
		MaxSpeedFactor: *opts.FilterDMag,
		MaxAngleDeg:    *opts.FilterDAngle,
	}
	p.ba = adaptive.NewFilter(adaptive.Params{
		DtMin:           *opts.AdaptiveDtMinUs,
		DtMax:           *opts.AdaptiveDtMaxUs,
		RateSetpoint:    *opts.AdaptiveRateSP,
		Gain:            *opts.AdaptiveGain,
		TauConstantSecs: *opts.AdaptiveTauConstantS,
	})
}

// Configure applies opts to the pipeline. A second Configure call with
// options equal to the currently-applied ones is a no-op, matching the
// reference harness's idempotent re-init law (spec §8).
func (p *Pipeline) Configure(opts *Options) error {
	if opts == nil {
		opts = Defaults()
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if reflect.DeepEqual(p.opts, opts) {
		return nil
	}
	p.applyOptions(opts)
	return nil
}

// StartOutput wires up the configured sinks and starts the writer
// goroutine. It is a no-op if output_mode is "none".
func (p *Pipeline) StartOutput(sinks ...output.Sink) {
	if *p.opts.OutputMode == "none" || len(sinks) == 0 {
		return
	}
	p.sinkSet = sinks
	p.handoff = output.NewHandoff(ringCapacity, sinks...)
	p.handoff.Start()
}

// Close shuts down the output handoff, if running, draining the ring and
// closing sinks.
func (p *Pipeline) Close() error {
	if p.handoff != nil {
		p.handoff.Stop()
	}
	return nil
}

// Stats returns the outcome of the most recently processed packet.
func (p *Pipeline) Stats() Stats { return p.lastStats }

// Process runs every valid event in pkt through the BA filter, refractory
// check, plane-fit estimator, buffer update, and regularization, in arrival
// order, then hands annotated output off to the writer if any event in the
// packet produced flow.
func (p *Pipeline) Process(pkt *Packet) {
	if pkt == nil || len(pkt.Events) == 0 {
		return
	}

	flowCount := 0
	var lastTimestamp int64
	adaptiveEnabled := *p.opts.AdaptiveEnable
	regularizeEnabled := *p.opts.FilterEnable
	refractoryPeriod := *p.opts.RefractoryPeriodUs

	for i := range pkt.Events {
		pe := &pkt.Events[i]
		if !pe.Valid {
			continue
		}
		e := &pe.Event
		lastTimestamp = e.Timestamp

		if adaptiveEnabled {
			if !p.ba.Check(int(e.X), int(e.Y), e.Timestamp, p.ltm) {
				pe.Valid = false
				continue
			}
		}

		last := p.buf.Read(int(e.X), int(e.Y), 0)
		if e.Timestamp-last.Timestamp < refractoryPeriod {
			pe.Valid = false
			continue
		}

		if u, v, ok := flow.Estimate(*e, p.buf, p.flowParams); ok {
			e.U, e.V = u, v
			e.HasFlow = true
		}

		p.buf.Add(*e)

		if e.HasFlow {
			if regularizeEnabled {
				regularize.Apply(e, p.buf, p.regParams)
			}
			if e.HasFlow {
				p.meanU += (e.U - p.meanU) * meanFlowAlpha
				p.meanV += (e.V - p.meanV) * meanFlowAlpha
				flowCount++
				if adaptiveEnabled {
					p.ba.OnFlow(e.Timestamp)
					p.rateTracker.Observe(p.ba.Rate())
				}
			}
		}
		if !e.HasFlow {
			pe.Valid = false
		}
	}

	if p.handoff != nil && flowCount > 0 {
		annotated := make([]event.Event, 0, flowCount)
		for _, pe := range pkt.Events {
			if pe.Valid && pe.Event.HasFlow {
				annotated = append(annotated, pe.Event)
			}
		}
		p.handoff.Enqueue(&output.Packet{EventSource: pkt.EventSource, Events: annotated})
	}

	delayMs := p.delay.Update(time.Now(), lastTimestamp)
	rate := p.rateTracker.Median()
	p.lastStats = Stats{
		FlowEventsThisPacket: flowCount,
		DelayMs:              delayMs,
		Rate:                 rate,
		Tau:                  p.ba.Tau(),
	}
	log.Print(telemetry.Status(p.meanU, p.meanV, delayMs, rate, p.ba.Tau()))
}
