package position

import (
	"context"
	"math"
	"time"

	"github.com/concord-chat/voicecore/pkg/protocol"
)

// Obfuscator resolves a real player id to the short token shown to other
// clients (implemented by internal/identity.Mapper).
type Obfuscator interface {
	Obfuscate(id string) (string, error)
}

// RangeResolver returns the effective proximity range for a player: its
// group's proximity_range_meters if it is in a group, else the server's
// default_proximity_distance.
type RangeResolver interface {
	RangeForPlayer(playerID string) float64
}

// Sink delivers one encoded position_update frame to a live client.
type Sink interface {
	SendPositionUpdate(clientID string, payload protocol.PositionUpdatePayload)
}

// Scheduler periodically computes and delivers proximity-filtered
// position_update frames per §4.5.
type Scheduler struct {
	Tracker    Tracker
	Presence   Presence
	Obfuscator Obfuscator
	Ranges     RangeResolver
	Sink       Sink
	Interval   time.Duration

	// LiveClientIDs returns the ids of every currently live client;
	// decoupled from the session store to keep this package leaf-level.
	LiveClientIDs func() []string

	// now is overridable for deterministic tests.
	now func() time.Time
}

// Run blocks, emitting a broadcast tick every Interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick computes and delivers one broadcast round synchronously.
func (s *Scheduler) Tick() {
	if s.LiveClientIDs == nil || s.Tracker == nil {
		return
	}
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}

	all := s.Tracker.List()
	clientIDs := s.LiveClientIDs()

	for _, clientID := range clientIDs {
		listenerPos, ok := s.Tracker.Get(clientID)
		if !ok {
			continue
		}
		if s.Presence != nil && !s.Presence.IsOnline(clientID) {
			continue
		}

		effRange := math.Inf(1)
		if s.Ranges != nil {
			effRange = s.Ranges.RangeForPlayer(clientID)
		}

		var nearby []protocol.NearbyPlayerPayload
		for _, other := range all {
			if other.PlayerID == clientID {
				continue
			}
			d := Distance(listenerPos, other)
			if d > effRange {
				continue
			}
			obf, err := s.obfuscate(other.PlayerID)
			if err != nil {
				continue
			}
			nearby = append(nearby, protocol.NearbyPlayerPayload{
				UserID:   obf,
				Username: other.Username,
				X:        other.X,
				Y:        other.Y,
				Z:        other.Z,
				Yaw:      other.Yaw,
				Pitch:    other.Pitch,
				WorldID:  other.WorldID,
				Distance: round1(d),
			})
		}

		if len(nearby) == 0 {
			continue
		}

		listenerObf, err := s.obfuscate(clientID)
		if err != nil {
			continue
		}

		if s.Sink != nil {
			s.Sink.SendPositionUpdate(clientID, protocol.PositionUpdatePayload{
				Listener: protocol.ListenerPayload{
					UserID:  listenerObf,
					X:       listenerPos.X,
					Y:       listenerPos.Y,
					Z:       listenerPos.Z,
					Yaw:     listenerPos.Yaw,
					Pitch:   listenerPos.Pitch,
					WorldID: listenerPos.WorldID,
				},
				Positions: nearby,
				Timestamp: nowFn().UnixMilli(),
			})
		}
	}
}

func (s *Scheduler) obfuscate(id string) (string, error) {
	if s.Obfuscator == nil {
		return id, nil
	}
	return s.Obfuscator.Obfuscate(id)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
