// Package transport implements the WebRTC transport layer: per-client
// ICE/DTLS/SCTP peer sessions, trickle-ICE candidate buffering, and the
// DCEP data-channel protocol, per §4.3.
package transport

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// zerologFactory adapts our ambient zerolog.Logger to the pion ecosystem's
// logging.LoggerFactory, so the ICE/DTLS/SCTP stacks log through the same
// structured sink as the rest of the service.
type zerologFactory struct {
	base zerolog.Logger
}

// newLoggerFactory creates a pion logging.LoggerFactory backed by base.
func newLoggerFactory(base zerolog.Logger) logging.LoggerFactory {
	return &zerologFactory{base: base.With().Str("component", "transport").Logger()}
}

func (f *zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLeveledLogger{l: f.base.With().Str("scope", scope).Logger()}
}

// zerologLeveledLogger implements pion/logging.LeveledLogger.
type zerologLeveledLogger struct {
	l zerolog.Logger
}

func (z *zerologLeveledLogger) Trace(msg string)                          { z.l.Trace().Msg(msg) }
func (z *zerologLeveledLogger) Tracef(format string, args ...interface{}) { z.l.Trace().Msgf(format, args...) }
func (z *zerologLeveledLogger) Debug(msg string)                          { z.l.Debug().Msg(msg) }
func (z *zerologLeveledLogger) Debugf(format string, args ...interface{}) { z.l.Debug().Msgf(format, args...) }
func (z *zerologLeveledLogger) Info(msg string)                           { z.l.Info().Msg(msg) }
func (z *zerologLeveledLogger) Infof(format string, args ...interface{})  { z.l.Info().Msgf(format, args...) }
func (z *zerologLeveledLogger) Warn(msg string)                           { z.l.Warn().Msg(msg) }
func (z *zerologLeveledLogger) Warnf(format string, args ...interface{})  { z.l.Warn().Msgf(format, args...) }
func (z *zerologLeveledLogger) Error(msg string)                         { z.l.Error().Msg(msg) }
func (z *zerologLeveledLogger) Errorf(format string, args ...interface{}) { z.l.Error().Msgf(format, args...) }
