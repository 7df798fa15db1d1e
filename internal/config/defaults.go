package config

// Default returns a Config populated with the default values named in §6.3.
func Default() *Config {
	return &Config{
		Signaling: SignalingConfig{
			Port:                       8443,
			AllowedOrigins:             []string{"*"},
			STUNServers:                []string{"stun:stun.l.google.com:19302"},
			PendingGameJoinTimeoutSecs: 60,
		},
		TLS: TLSConfig{
			Enabled:  false,
			CertPath: "",
			KeyPath:  "",
		},
		Heartbeat: HeartbeatConfig{
			IntervalMs: 15000,
			TimeoutMs:  45000,
		},
		Resume: ResumeConfig{
			WindowMs: 30000,
		},
		Proximity: ProximityConfig{
			DefaultDistance:   30,
			MaxVoiceDistance:  60,
			FadeStartRatio:    0.7,
			RolloffFactor:     1.5,
			ServerSideVolume:  true,
			RadarEnabled:      true,
			RadarSpeakingOnly: false,
		},
		Group: GroupConfig{
			GlobalVoice:       true,
			SpatialAudio:      true,
			MinVolume:         0.15,
			DefaultIsIsolated: false,
			MaxNameLength:     32,
		},
		Opus: OpusConfig{
			DataChannelEnabled: true,
			SampleRate:         48000,
			Channels:           2,
			FrameDurationMs:    20,
			TargetBitrate:      32000,
		},
		Broadcast: BroadcastConfig{
			IntervalMs: 100,
		},
		WebRTC: WebRTCConfig{
			TransportMode: "datachannel",
			SCTPPort:      5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "json",
			OutputPath:   "stdout",
			ErrorPath:    "stderr",
			EnableCaller: false,
			EnableStack:  true,
		},
	}
}
