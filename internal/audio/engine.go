// Package audio implements the audio routing engine: a single worker
// that dequeues inbound frames, computes each frame's recipient set, and
// dispatches gain-scaled, versioned payloads to the transport layer
// (§4.4).
package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/observability"
	"github.com/concord-chat/voicecore/internal/position"
	"github.com/concord-chat/voicecore/internal/session"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

// SendResult mirrors the transport layer's per-send outcome (§4.3).
type SendResult int

const (
	SendSuccess SendResult = iota
	SendBackpressured
	SendClosed
	SendError
)

// Sender dispatches an encoded payload to one recipient's data channel.
type Sender interface {
	SendAudio(clientID string, payload []byte) SendResult
}

// Obfuscator resolves a real player id to its short public token.
type Obfuscator interface {
	Obfuscate(id string) (string, error)
}

// defaultQueueSize is the bounded queue capacity named in §3 ("Audio frame").
const defaultQueueSize = 1000

// oversizeLogGap rate-limits the oversize-frame warning (§4.4, §7) the same
// way the transport layer rate-limits its backpressure warning.
const oversizeLogGap = 5 * time.Second

// EngineConfig carries the tunables the engine needs from configuration.
type EngineConfig struct {
	Routing   RoutingConfig
	Gain      GainCurve
	QueueSize int
	// RadarEnabled mirrors proximity_radar_enabled (§6.3): when set, PCM
	// frames carry distance/maxRange metadata (version 2) so the client's
	// proximity radar UI can render it; when unset, PCM frames that would
	// otherwise be scaled still go out as version 1 (no metadata).
	RadarEnabled bool
	// ServerSideVolume mirrors server_side_volume_enabled (§6.3): when
	// unset, the engine stops scaling PCM samples and stops computing an
	// opus gain value, leaving volume entirely to the client.
	ServerSideVolume bool
}

// Engine is the audio routing engine. One Engine serves the whole
// server; a single goroutine processes its queue in FIFO order,
// guaranteeing per-sender ordering at each recipient (§5).
type Engine struct {
	groups    *group.Manager
	positions position.Tracker
	obfuscate Obfuscator
	sender    Sender
	liveIDs   func() []string
	codecFor  func(clientID string) (session.Codec, bool)

	cfg     EngineConfig
	queue   chan job
	metrics *observability.Metrics
	logger  zerolog.Logger

	lastLoopTickAt    atomic.Int64 // unix nanos, updated every Run iteration
	lastOversizeLogAt atomic.Int64 // unix nanos, last time an oversize-frame warning was logged
}

type job struct {
	senderID string
	payload  []byte
}

// NewEngine constructs an Engine. liveIDs enumerates currently live
// client ids; codecFor resolves a client's negotiated codec.
func NewEngine(
	groups *group.Manager,
	positions position.Tracker,
	obfuscate Obfuscator,
	sender Sender,
	liveIDs func() []string,
	codecFor func(clientID string) (session.Codec, bool),
	cfg EngineConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Engine {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	e := &Engine{
		groups:    groups,
		positions: positions,
		obfuscate: obfuscate,
		sender:    sender,
		liveIDs:   liveIDs,
		codecFor:  codecFor,
		cfg:       cfg,
		queue:     make(chan job, size),
		metrics:   metrics,
		logger:    logger.With().Str("component", "audio_engine").Logger(),
	}
	e.lastLoopTickAt.Store(time.Now().UnixNano())
	return e
}

// ReceiveAudio enqueues an inbound frame for routing. It never blocks:
// if the queue is full the new frame is dropped in favor of freshness.
func (e *Engine) ReceiveAudio(senderID string, payload []byte) {
	select {
	case e.queue <- job{senderID: senderID, payload: payload}:
		if e.metrics != nil {
			e.metrics.AudioFramesReceivedTotal.Inc()
			e.metrics.AudioQueueDepth.Set(float64(len(e.queue)))
		}
	default:
		if e.metrics != nil {
			e.metrics.AudioFramesDroppedTotal.WithLabelValues("queue_full").Inc()
		}
		e.logger.Warn().Str("sender_id", senderID).Msg("audio queue full, dropping frame")
	}
}

// Run processes the queue until ctx is cancelled. Call it once, from a
// single goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		e.lastLoopTickAt.Store(time.Now().UnixNano())
		select {
		case <-ctx.Done():
			return
		case j := <-e.queue:
			if e.metrics != nil {
				e.metrics.AudioQueueDepth.Set(float64(len(e.queue)))
			}
			e.route(j)
		case <-time.After(100 * time.Millisecond):
			// Poll tick: nothing to do when the queue is empty, but this
			// keeps the loop responsive to cancellation per §5.
		}
	}
}

// StalledCheck returns a health-check probe that reports an error once the
// routing loop has not ticked for longer than threshold, implying the
// worker goroutine has stopped running.
func (e *Engine) StalledCheck(threshold time.Duration) func() error {
	return func() error {
		last := time.Unix(0, e.lastLoopTickAt.Load())
		if age := time.Since(last); age > threshold {
			return fmt.Errorf("audio engine loop has not ticked in %s", age)
		}
		return nil
	}
}

func (e *Engine) route(j job) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.AudioFanoutLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	senderToken, err := e.obfuscate.Obfuscate(j.senderID)
	if err != nil {
		e.logger.Warn().Str("sender_id", j.senderID).Err(err).Msg("failed to obfuscate sender id")
		return
	}

	codec := session.CodecPCM
	if e.codecFor != nil {
		if c, ok := e.codecFor(j.senderID); ok {
			codec = c
		}
	}

	targets := computeRecipients(j.senderID, e.groups, e.positions, e.liveIDs(), e.cfg.Routing)

	for _, target := range targets {
		// server_side_volume_enabled (§6.3) gates whether the engine scales
		// PCM samples itself; when disabled, the client applies volume from
		// the transmitted distance/gain metadata instead (§4.4 "Gain
		// application" describes the Opus path the same way).
		gain := 1.0
		if e.cfg.ServerSideVolume {
			gain = e.cfg.Gain.Gain(target.Mode, target.Distance, target.MaxRange)
		}

		frame, err := e.encode(senderToken, codec, target, gain, j.payload)
		if err != nil {
			if e.metrics != nil {
				e.metrics.AudioFramesDroppedTotal.WithLabelValues("oversize").Inc()
			}
			e.logOversizeDrop(j.senderID, target.ClientID, err)
			continue
		}

		result := e.sender.SendAudio(target.ClientID, frame)
		switch result {
		case SendBackpressured:
			if e.metrics != nil {
				e.metrics.AudioBackpressureTotal.Inc()
			}
		case SendError, SendClosed:
			if e.metrics != nil {
				e.metrics.AudioFramesDroppedTotal.WithLabelValues("backpressure").Inc()
			}
		}
	}
}

// logOversizeDrop warns about a dropped oversize frame (§4.4 "drop the frame
// and log a warning"; §7 "silent frame drop plus rate-limited log"), at most
// once per oversizeLogGap so a chatty sender can't flood the log.
func (e *Engine) logOversizeDrop(senderID, recipientID string, err error) {
	now := time.Now()
	last := time.Unix(0, e.lastOversizeLogAt.Load())
	if now.Sub(last) < oversizeLogGap {
		return
	}
	e.lastOversizeLogAt.Store(now.UnixNano())
	e.logger.Warn().
		Str("sender_id", senderID).
		Str("recipient_id", recipientID).
		Err(err).
		Msg("dropping oversize audio frame")
}

func (e *Engine) encode(senderToken string, codec session.Codec, target Target, gain float64, payload []byte) ([]byte, error) {
	if codec == session.CodecOpus {
		scaled := target.Mode != ModeFullVolume
		return protocol.EncodeOpus(protocol.AudioFrame{
			Sender: senderToken,
			// Proximity metadata travels whenever the radar UI wants it, or
			// whenever the client must compute its own gain because the
			// server isn't doing it (§4.4 "Gain application": opus gain is
			// always client-applied post-decode, never byte-scaled here).
			HasProximity: scaled && (e.cfg.RadarEnabled || !e.cfg.ServerSideVolume),
			Distance:     float32(target.Distance),
			MaxRange:     float32(target.MaxRange),
			HasGain:      scaled && e.cfg.ServerSideVolume,
			Gain:         float32(gain),
			Payload:      payload,
		})
	}

	scaled := protocol.ScalePCM(payload, float32(gain))
	if target.Mode == ModeFullVolume || !e.cfg.RadarEnabled {
		return protocol.EncodePCM(senderToken, scaled)
	}
	return protocol.EncodePCMProximity(senderToken, float32(target.Distance), float32(target.MaxRange), scaled)
}
