// Package position defines the external collaborators the core consumes
// for player positions, presence, and login-code validation, plus the
// periodic broadcast scheduler that turns positions into per-client
// proximity frames (§1 "Explicitly out of scope", §4.5).
package position

import "math"

// Position is a player's last known pose in the shared world (§3).
type Position struct {
	PlayerID  string
	Username  string
	X, Y, Z   float64
	Yaw       float64
	Pitch     float64
	WorldID   string
	CapturedAt int64 // unix millis
}

// Distance returns the Euclidean distance between two positions in the
// same world, or +Inf across worlds.
func Distance(a, b Position) float64 {
	if a.WorldID != b.WorldID {
		return math.Inf(1)
	}
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Tracker is the external position source the core consumes: lookup by
// player id, and a listing of all known positions.
type Tracker interface {
	Get(playerID string) (Position, bool)
	List() []Position
}

// Presence reports whether a player is currently online in the game, as
// decided by the in-game plugin.
type Presence interface {
	IsOnline(playerID string) bool
}

// AuthCodeStore validates a one-shot login code issued by the in-game
// plugin and resolves it to a player id.
type AuthCodeStore interface {
	Validate(username, code string) (playerID string, ok bool)
}
