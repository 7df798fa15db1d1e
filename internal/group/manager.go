package group

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNameTaken is returned by CreateGroup when a live group already
	// has the same name, case-insensitively.
	ErrNameTaken = errors.New("group: name already in use")
	// ErrNotFound is returned when a group_id does not resolve to a live group.
	ErrNotFound = errors.New("group: not found")
	// ErrNotCreator is returned when a non-creator attempts a creator-only mutation.
	ErrNotCreator = errors.New("group: requester is not the creator")
	ErrFull       = errors.New("group: at capacity")
)

// Event is the set of listener callbacks a Manager invokes after a
// mutation completes, always outside the internal lock.
type Event struct {
	Created    func(g Snapshot)
	Deleted    func(groupID string)
	MemberJoined func(groupID, playerID string)
	MemberLeft   func(groupID, playerID string, newOwner string)
}

// Snapshot is an immutable, lock-free copy of a Group for callers outside
// the manager.
type Snapshot struct {
	ID           string
	Name         string
	IsPermanent  bool
	IsIsolated   bool
	CreatorID    string
	Members      []string
	Settings     Settings
	HasPassword  bool
	CreatedAt    time.Time
}

// Manager owns all live groups under a single mutex, per §4.2 and §5.
type Manager struct {
	mu     sync.Mutex
	groups map[string]*Group
	byName map[string]string // lowercased name -> group id
	owner  map[string]string // player id -> group id
	events Event
}

// NewManager creates an empty Manager. events may have nil fields; unset
// listeners are simply not invoked.
func NewManager(events Event) *Manager {
	return &Manager{
		groups: make(map[string]*Group),
		byName: make(map[string]string),
		owner:  make(map[string]string),
		events: events,
	}
}

// CreateGroup reserves the name (unique case-insensitively) and stores a
// new group. The name's format is not checked here; the signaling layer
// validates it before calling.
// permanent must already be authorized by the caller (non-admins must
// never pass permanent=true; the signaling layer enforces this).
func (m *Manager) CreateGroup(name string, permanent bool, creatorID string, settings Settings, isolated bool) (Snapshot, error) {
	key := strings.ToLower(name)

	m.mu.Lock()
	if _, exists := m.byName[key]; exists {
		m.mu.Unlock()
		return Snapshot{}, ErrNameTaken
	}

	g := &Group{
		ID:          uuid.NewString(),
		Name:        name,
		IsPermanent: permanent,
		IsIsolated:  isolated,
		CreatorID:   creatorID,
		Members:     make(map[string]struct{}),
		Settings:    settings.Clamp(),
		CreatedAt:   time.Now(),
	}
	m.groups[g.ID] = g
	m.byName[key] = g.ID
	snap := snapshotOf(g)
	m.mu.Unlock()

	if m.events.Created != nil {
		m.events.Created(snap)
	}
	return snap, nil
}

// JoinGroup adds playerID to groupID, leaving any prior group first. The
// caller (signaling layer) must have already verified any group password.
func (m *Manager) JoinGroup(playerID, groupID string) (Snapshot, error) {
	m.leaveCurrent(playerID)

	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if len(g.Members) >= g.Settings.MaxMembers {
		m.mu.Unlock()
		return Snapshot{}, ErrFull
	}
	g.Members[playerID] = struct{}{}
	m.owner[playerID] = groupID
	snap := snapshotOf(g)
	m.mu.Unlock()

	if m.events.MemberJoined != nil {
		m.events.MemberJoined(groupID, playerID)
	}
	return snap, nil
}

// LeaveGroup removes playerID from its current group, transferring
// ownership and auto-disbanding as needed. Returns the new owner, if
// ownership transferred, and whether the player was in a group at all.
func (m *Manager) LeaveGroup(playerID string) (newOwner string, wasMember bool) {
	return m.leaveCurrent(playerID)
}

// leaveCurrent is the shared implementation behind LeaveGroup and the
// re-entrant leave performed by JoinGroup.
func (m *Manager) leaveCurrent(playerID string) (newOwner string, wasMember bool) {
	m.mu.Lock()
	groupID, ok := m.owner[playerID]
	if !ok {
		m.mu.Unlock()
		return "", false
	}
	g, ok := m.groups[groupID]
	if !ok {
		delete(m.owner, playerID)
		m.mu.Unlock()
		return "", false
	}

	delete(g.Members, playerID)
	delete(m.owner, playerID)

	deleted := false
	if g.CreatorID == playerID && len(g.Members) > 0 {
		newOwner = firstByOrder(g.memberIDs())
		g.CreatorID = newOwner
	}
	if len(g.Members) == 0 && !g.IsPermanent {
		delete(m.groups, groupID)
		delete(m.byName, strings.ToLower(g.Name))
		deleted = true
	}
	m.mu.Unlock()

	if deleted {
		if m.events.Deleted != nil {
			m.events.Deleted(groupID)
		}
	}
	if m.events.MemberLeft != nil {
		m.events.MemberLeft(groupID, playerID, newOwner)
	}
	return newOwner, true
}

// UpdateSettings applies new settings and/or isolation; only the creator
// may call this successfully.
func (m *Manager) UpdateSettings(groupID, requesterID string, settings *Settings, isolated *bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if g.CreatorID != requesterID {
		return ErrNotCreator
	}
	if settings != nil {
		g.Settings = settings.Clamp()
	}
	if isolated != nil {
		g.IsIsolated = *isolated
	}
	return nil
}

// CheckPassword invokes verify with the group's stored password hash
// (empty if none) without exposing the hash itself to callers outside
// this package.
func (m *Manager) CheckPassword(groupID string, verify func(hash string) (bool, error)) (bool, error) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	m.mu.Unlock()
	if !ok {
		return false, ErrNotFound
	}
	return verify(g.PasswordHash)
}

// SetPassword sets or clears (empty hash) the group's password hash.
// Only the creator may call this successfully.
func (m *Manager) SetPassword(groupID, requesterID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if g.CreatorID != requesterID {
		return ErrNotCreator
	}
	g.PasswordHash = passwordHash
	return nil
}

// SetPermanent marks the group permanent/non-permanent. Only the creator
// may call this; the signaling layer additionally restricts setting
// permanent=true to admins before calling.
func (m *Manager) SetPermanent(groupID, requesterID string, permanent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if g.CreatorID != requesterID {
		return ErrNotCreator
	}
	g.IsPermanent = permanent
	return nil
}

// ListGroups returns a snapshot of every live group.
func (m *Manager) ListGroups() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, snapshotOf(g))
	}
	return out
}

// GetGroup returns a snapshot of a single group.
func (m *Manager) GetGroup(groupID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(g), true
}

// GetPlayerGroup returns the id of the group playerID currently belongs
// to, if any.
func (m *Manager) GetPlayerGroup(playerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.owner[playerID]
	return id, ok
}

// GetMembers returns the member ids of a group.
func (m *Manager) GetMembers(groupID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return g.memberIDs(), nil
}

// HandlePlayerDisconnect is equivalent to LeaveGroup, named separately to
// mirror the external operation named in the design.
func (m *Manager) HandlePlayerDisconnect(playerID string) (newOwner string, wasMember bool) {
	return m.LeaveGroup(playerID)
}

// Shutdown clears all non-permanent groups and membership mappings.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, g := range m.groups {
		if g.IsPermanent {
			continue
		}
		delete(m.groups, id)
		delete(m.byName, strings.ToLower(g.Name))
		for member := range g.Members {
			delete(m.owner, member)
		}
	}
}

func snapshotOf(g *Group) Snapshot {
	return Snapshot{
		ID:          g.ID,
		Name:        g.Name,
		IsPermanent: g.IsPermanent,
		IsIsolated:  g.IsIsolated,
		CreatorID:   g.CreatorID,
		Members:     g.memberIDs(),
		Settings:    g.Settings,
		HasPassword: g.HasPassword(),
		CreatedAt:   g.CreatedAt,
	}
}

// firstByOrder picks a deterministic successor from the remaining member
// set; any total order satisfies the design's "arbitrary remaining
// member" requirement, so this sorts lexically for reproducibility.
func firstByOrder(ids []string) string {
	sort.Strings(ids)
	return ids[0]
}
