package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

// AudioVersion identifies the layout of a data-channel audio payload.
type AudioVersion uint8

const (
	AudioVersionPCM           AudioVersion = 1 // PCM, no metadata
	AudioVersionPCMProximity  AudioVersion = 2 // PCM, with distance/maxRange
	AudioVersionOpus          AudioVersion = 3 // Opus, flag-gated metadata
)

// Opus flag bits for AudioVersionOpus.
const (
	AudioFlagProximity uint8 = 0x01
	AudioFlagGain      uint8 = 0x02
)

// DataChannelMaxPayload is the maximum header+payload size accepted onto
// a data channel; larger frames are dropped rather than fragmented.
const DataChannelMaxPayload = 900

// MaxSenderTokenLen is the maximum length of an obfuscated sender token.
const MaxSenderTokenLen = 255

var (
	ErrAudioTooShort       = errors.New("protocol: audio payload too short")
	ErrAudioTooLarge       = errors.New("protocol: audio payload exceeds data channel max")
	ErrAudioSenderTooLong  = errors.New("protocol: sender token exceeds max length")
	ErrAudioUnknownVersion = errors.New("protocol: unknown audio payload version")
)

// AudioFrame is a decoded data-channel audio payload.
type AudioFrame struct {
	Version    AudioVersion
	Sender     string
	Distance   float32
	MaxRange   float32
	HasGain    bool
	Gain       float32
	HasProximity bool
	Payload    []byte // raw PCM or Opus bytes
}

// EncodePCM builds a version-1 PCM payload with no metadata.
func EncodePCM(sender string, pcm []byte) ([]byte, error) {
	return encode(AudioFrame{Version: AudioVersionPCM, Sender: sender, Payload: pcm})
}

// EncodePCMProximity builds a version-2 PCM payload carrying distance and
// max range as IEEE-754 32-bit big-endian floats.
func EncodePCMProximity(sender string, distance, maxRange float32, pcm []byte) ([]byte, error) {
	return encode(AudioFrame{
		Version:      AudioVersionPCMProximity,
		Sender:       sender,
		Distance:     distance,
		MaxRange:     maxRange,
		HasProximity: true,
		Payload:      pcm,
	})
}

// EncodeOpus builds a version-3 Opus payload. Proximity and/or gain
// metadata are included according to which fields of frame are set.
func EncodeOpus(frame AudioFrame) ([]byte, error) {
	frame.Version = AudioVersionOpus
	return encode(frame)
}

func encode(f AudioFrame) ([]byte, error) {
	if len(f.Sender) > MaxSenderTokenLen {
		return nil, ErrAudioSenderTooLong
	}

	buf := make([]byte, 0, DataChannelMaxPayload)
	buf = append(buf, byte(f.Version))

	switch f.Version {
	case AudioVersionPCM:
		buf = append(buf, byte(len(f.Sender)))
		buf = append(buf, f.Sender...)
		buf = append(buf, f.Payload...)

	case AudioVersionPCMProximity:
		buf = append(buf, byte(len(f.Sender)))
		buf = append(buf, f.Sender...)
		buf = appendFloat32(buf, f.Distance)
		buf = appendFloat32(buf, f.MaxRange)
		buf = append(buf, f.Payload...)

	case AudioVersionOpus:
		var flags uint8
		if f.HasProximity {
			flags |= AudioFlagProximity
		}
		if f.HasGain {
			flags |= AudioFlagGain
		}
		buf = append(buf, byte(len(f.Sender)))
		buf = append(buf, flags)
		buf = append(buf, f.Sender...)
		if f.HasProximity {
			buf = appendFloat32(buf, f.Distance)
			buf = appendFloat32(buf, f.MaxRange)
		}
		if f.HasGain {
			buf = appendFloat32(buf, f.Gain)
		}
		buf = append(buf, f.Payload...)

	default:
		return nil, ErrAudioUnknownVersion
	}

	if len(buf) > DataChannelMaxPayload {
		return nil, ErrAudioTooLarge
	}
	return buf, nil
}

// DecodeAudioFrame parses a data-channel audio payload per §6.2's byte
// layout. The returned Payload aliases buf's backing array.
func DecodeAudioFrame(buf []byte) (AudioFrame, error) {
	if len(buf) > DataChannelMaxPayload {
		return AudioFrame{}, ErrAudioTooLarge
	}
	if len(buf) < 2 {
		return AudioFrame{}, ErrAudioTooShort
	}

	version := AudioVersion(buf[0])
	switch version {
	case AudioVersionPCM:
		senderLen := int(buf[1])
		off := 2
		if len(buf) < off+senderLen {
			return AudioFrame{}, ErrAudioTooShort
		}
		sender := string(buf[off : off+senderLen])
		off += senderLen
		return AudioFrame{Version: version, Sender: sender, Payload: buf[off:]}, nil

	case AudioVersionPCMProximity:
		senderLen := int(buf[1])
		off := 2
		if len(buf) < off+senderLen+8 {
			return AudioFrame{}, ErrAudioTooShort
		}
		sender := string(buf[off : off+senderLen])
		off += senderLen
		distance := readFloat32(buf[off:])
		off += 4
		maxRange := readFloat32(buf[off:])
		off += 4
		return AudioFrame{
			Version:      version,
			Sender:       sender,
			Distance:     distance,
			MaxRange:     maxRange,
			HasProximity: true,
			Payload:      buf[off:],
		}, nil

	case AudioVersionOpus:
		if len(buf) < 3 {
			return AudioFrame{}, ErrAudioTooShort
		}
		senderLen := int(buf[1])
		flags := buf[2]
		off := 3
		if len(buf) < off+senderLen {
			return AudioFrame{}, ErrAudioTooShort
		}
		sender := string(buf[off : off+senderLen])
		off += senderLen

		frame := AudioFrame{Version: version, Sender: sender}
		if flags&AudioFlagProximity != 0 {
			if len(buf) < off+8 {
				return AudioFrame{}, ErrAudioTooShort
			}
			frame.Distance = readFloat32(buf[off:])
			off += 4
			frame.MaxRange = readFloat32(buf[off:])
			off += 4
			frame.HasProximity = true
		}
		if flags&AudioFlagGain != 0 {
			if len(buf) < off+4 {
				return AudioFrame{}, ErrAudioTooShort
			}
			frame.Gain = readFloat32(buf[off:])
			off += 4
			frame.HasGain = true
		}
		frame.Payload = buf[off:]
		return frame, nil

	default:
		return AudioFrame{}, ErrAudioUnknownVersion
	}
}

func appendFloat32(buf []byte, v float32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(v))
	return append(buf, tmp[:]...)
}

func readFloat32(buf []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(buf))
}

// ScalePCM multiplies 16-bit little-endian signed samples by gain
// sample-wise, clamping on overflow. samples must have even length.
func ScalePCM(samples []byte, gain float32) []byte {
	out := make([]byte, len(samples))
	for i := 0; i+1 < len(samples); i += 2 {
		s := int16(binary.LittleEndian.Uint16(samples[i : i+2]))
		scaled := float64(s) * float64(gain)
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:i+2], uint16(int16(scaled)))
	}
	return out
}
