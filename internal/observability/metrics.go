package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the voice-chat core.
// Naming follows the convention voicecore_<subsystem>_<metric>_<unit>.
type Metrics struct {
	// Signaling
	SignalingConnectionsTotal *prometheus.CounterVec
	SignalingActiveSessions  prometheus.Gauge
	SignalingMessagesTotal   *prometheus.CounterVec
	AuthAttemptsTotal        *prometheus.CounterVec
	ResumeAttemptsTotal      *prometheus.CounterVec
	HeartbeatTimeoutsTotal   prometheus.Counter

	// Group & identity
	GroupsActive       prometheus.Gauge
	GroupOpsTotal      *prometheus.CounterVec
	IdentityMapSize    prometheus.Gauge
	IdentityCollisions prometheus.Counter

	// WebRTC transport
	PeerSessionsActive  prometheus.Gauge
	PeerStateTransitions *prometheus.CounterVec
	ICECandidatesTotal  *prometheus.CounterVec
	DataChannelsOpen    prometheus.Gauge

	// Audio routing
	AudioFramesReceivedTotal prometheus.Counter
	AudioFramesDroppedTotal  *prometheus.CounterVec
	AudioQueueDepth          prometheus.Gauge
	AudioFanoutLatency       prometheus.Histogram
	AudioBackpressureTotal   prometheus.Counter

	// Position broadcast
	BroadcastTicksTotal   prometheus.Counter
	BroadcastRecipients   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
// Complexity: O(1)
func NewMetrics() *Metrics {
	return &Metrics{
		SignalingConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_signaling_connections_total",
				Help: "Total WebSocket connections accepted, by outcome",
			},
			[]string{"outcome"}, // accepted, origin_rejected
		),
		SignalingActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_signaling_active_sessions",
				Help: "Number of currently authenticated sessions",
			},
		),
		SignalingMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_signaling_messages_total",
				Help: "Total signaling messages processed, by type",
			},
			[]string{"type"},
		),
		AuthAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_signaling_auth_attempts_total",
				Help: "Total authenticate attempts, by outcome",
			},
			[]string{"outcome"}, // success, invalid_code, codec_unsupported
		),
		ResumeAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_signaling_resume_attempts_total",
				Help: "Total resume attempts, by outcome",
			},
			[]string{"outcome"}, // success, resume_failed
		),
		HeartbeatTimeoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecore_signaling_heartbeat_timeouts_total",
				Help: "Total sessions closed due to heartbeat timeout",
			},
		),

		GroupsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_group_active",
				Help: "Number of currently live groups",
			},
		),
		GroupOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_group_ops_total",
				Help: "Total group operations, by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		IdentityMapSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_identity_map_size",
				Help: "Number of live obfuscated-id mappings",
			},
		),
		IdentityCollisions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecore_identity_token_collisions_total",
				Help: "Total obfuscated-token generation collisions",
			},
		),

		PeerSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_transport_peer_sessions_active",
				Help: "Number of active WebRTC peer sessions",
			},
		),
		PeerStateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_transport_peer_state_transitions_total",
				Help: "Total peer session state transitions, by target state",
			},
			[]string{"state"},
		),
		ICECandidatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_transport_ice_candidates_total",
				Help: "Total ICE candidates processed, by direction",
			},
			[]string{"direction"}, // local, remote
		),
		DataChannelsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_transport_datachannels_open",
				Help: "Number of open DCEP data channels",
			},
		),

		AudioFramesReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecore_audio_frames_received_total",
				Help: "Total audio frames accepted into the ingress queue",
			},
		),
		AudioFramesDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecore_audio_frames_dropped_total",
				Help: "Total audio frames dropped, by reason",
			},
			[]string{"reason"}, // queue_full, oversize, backpressure
		),
		AudioQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicecore_audio_queue_depth",
				Help: "Current depth of the ingress audio queue",
			},
		),
		AudioFanoutLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voicecore_audio_fanout_latency_milliseconds",
				Help:    "Time to compute and dispatch a frame's recipient set",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
			},
		),
		AudioBackpressureTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecore_audio_backpressure_total",
				Help: "Total backpressure events across all recipients",
			},
		),

		BroadcastTicksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecore_broadcast_ticks_total",
				Help: "Total position broadcast scheduler ticks",
			},
		),
		BroadcastRecipients: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voicecore_broadcast_recipients",
				Help:    "Number of nearby players included per position_update frame",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 40},
			},
		),
	}
}
