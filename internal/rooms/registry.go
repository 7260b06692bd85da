// Package rooms keeps the in-memory registry of game rooms and the room
// lifecycle: a room is created Waiting, moves to Running when a session is
// launched, and ends Closed. Rooms never leave Closed.
package rooms

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/ports"
	"github.com/playdeck/playdeck/internal/runtime"
)

type State string

const (
	Waiting State = "waiting"
	Running State = "running"
	Closed  State = "closed"
)

// ConnInfo tells clients where the game server listens.
type ConnInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RoomInfo is a point-in-time snapshot of a room, safe to hand out.
type RoomInfo struct {
	ID           string    `json:"id"`
	GameID       string    `json:"game_id"`
	VersionLabel string    `json:"version"`
	Host         string    `json:"host"`
	State        State     `json:"state"`
	Players      []string  `json:"players"`
	MinPlayers   int       `json:"min_players"`
	MaxPlayers   int       `json:"max_players"`
	EntryPoint   string    `json:"entry_point,omitempty"`
	Conn         *ConnInfo `json:"conn,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ClosedReason string    `json:"closed_reason,omitempty"`
}

// Event is pushed to room watchers on every state change.
type Event struct {
	Type string   `json:"type"`
	Room RoomInfo `json:"room"`
}

type room struct {
	mu sync.Mutex

	id      string
	gameID  string
	version *ports.Version // pinned at creation, later uploads do not move it
	host    string

	state   State
	roster  []string
	beats   map[string]time.Time
	conn    *ConnInfo
	handle  runtime.Handle
	created time.Time

	closedAt     time.Time
	closedReason string

	subs map[chan Event]struct{}
}

// Catalog is the slice of the catalog the registry needs.
type Catalog interface {
	Game(ctx context.Context, id string) (*ports.Game, error)
	Resolve(ctx context.Context, gameID, label string) (*ports.Version, error)
}

// Registry owns all live rooms.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	catalog Catalog
}

func NewRegistry(catalog Catalog) *Registry {
	return &Registry{rooms: make(map[string]*room), catalog: catalog}
}

// Create opens a Waiting room for a game. The version (latest, or an explicit
// label) is resolved once here; the room keeps playing it even if newer
// versions are uploaded afterwards.
func (r *Registry) Create(ctx context.Context, host, gameID, label string) (RoomInfo, error) {
	game, err := r.catalog.Game(ctx, gameID)
	if err != nil {
		return RoomInfo{}, err
	}
	if !game.Listed {
		return RoomInfo{}, fault.Newf(fault.GameNotPlayable, gameID, "game %s is delisted", gameID)
	}
	ver, err := r.catalog.Resolve(ctx, gameID, label)
	if err != nil {
		return RoomInfo{}, err
	}
	if ver.Manifest.Entry == "" {
		return RoomInfo{}, fault.Newf(fault.GameNotPlayable, gameID, "version %s of %s has no entry point", ver.Label, gameID)
	}
	now := time.Now()
	rm := &room{
		id:      uuid.NewString(),
		gameID:  gameID,
		version: ver,
		host:    host,
		state:   Waiting,
		roster:  []string{host},
		beats:   map[string]time.Time{host: now},
		created: now,
		subs:    make(map[chan Event]struct{}),
	}
	r.mu.Lock()
	r.rooms[rm.id] = rm
	r.mu.Unlock()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked(), nil
}

func (r *Registry) get(id string) (*room, error) {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fault.Newf(fault.RoomNotFound, id, "room %s not found", id)
	}
	return rm, nil
}

// Get returns a snapshot of one room.
func (r *Registry) Get(id string) (RoomInfo, error) {
	rm, err := r.get(id)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked(), nil
}

// List returns snapshots of all rooms, newest first.
func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	all := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		all = append(all, rm)
	}
	r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(all))
	for _, rm := range all {
		rm.mu.Lock()
		out = append(out, rm.snapshotLocked())
		rm.mu.Unlock()
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Join adds a player to a Waiting room.
func (r *Registry) Join(id, player string) (RoomInfo, error) {
	rm, err := r.get(id)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	// Joining is only possible while waiting; a Running room is just as
	// closed to newcomers as a Closed one.
	if rm.state != Waiting {
		return RoomInfo{}, fault.Newf(fault.RoomClosed, id, "room %s is no longer accepting players", id)
	}
	for _, p := range rm.roster {
		if p == player {
			return RoomInfo{}, fault.Newf(fault.AlreadyJoined, id, "%s is already in room %s", player, id)
		}
	}
	if len(rm.roster) >= rm.version.Manifest.MaxPlayers {
		return RoomInfo{}, fault.Newf(fault.RoomFull, id, "room %s is full", id)
	}
	rm.roster = append(rm.roster, player)
	rm.beats[player] = time.Now()
	snap := rm.snapshotLocked()
	rm.notifyLocked(Event{Type: "joined", Room: snap})
	return snap, nil
}

// Leave removes a player. Leaving a room you are not in is a no-op, and a
// departure mid-session does not end the game. A host leaving a Waiting room
// closes it.
func (r *Registry) Leave(id, player string) (RoomInfo, error) {
	rm, err := r.get(id)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.state == Closed {
		return rm.snapshotLocked(), nil
	}
	if player == rm.host && rm.state == Waiting {
		rm.closeLocked("host left")
		return rm.snapshotLocked(), nil
	}
	if !contains(rm.roster, player) {
		return rm.snapshotLocked(), nil
	}
	rm.dropLocked(player)
	snap := rm.snapshotLocked()
	rm.notifyLocked(Event{Type: "left", Room: snap})
	return snap, nil
}

// Close ends a room. Only the host may close it; closing an already closed
// room succeeds without effect.
func (r *Registry) Close(id, caller string) (RoomInfo, error) {
	rm, err := r.get(id)
	if err != nil {
		return RoomInfo{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if caller != rm.host {
		return RoomInfo{}, fault.Newf(fault.NotAuthorized, id, "only the host may close room %s", id)
	}
	if rm.state != Closed {
		rm.closeLocked("closed by host")
	}
	return rm.snapshotLocked(), nil
}

// Heartbeat refreshes a roster member's liveness stamp.
func (r *Registry) Heartbeat(id, player string) error {
	rm, err := r.get(id)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.state == Closed {
		return fault.Newf(fault.RoomClosed, id, "room %s is closed", id)
	}
	for _, p := range rm.roster {
		if p == player {
			rm.beats[player] = time.Now()
			return nil
		}
	}
	return fault.Newf(fault.NotAuthorized, id, "%s is not in room %s", player, id)
}

// Sweep evicts members whose heartbeat went stale, closes Waiting rooms whose
// host went stale, and deletes Closed rooms older than the grace window.
func (r *Registry) Sweep(now time.Time, heartbeatTimeout, closedGrace time.Duration) {
	r.mu.Lock()
	all := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		all = append(all, rm)
	}
	r.mu.Unlock()

	var reap []string
	for _, rm := range all {
		rm.mu.Lock()
		switch rm.state {
		case Closed:
			if now.Sub(rm.closedAt) > closedGrace {
				reap = append(reap, rm.id)
			}
		case Waiting, Running:
			for _, p := range append([]string(nil), rm.roster...) {
				last, ok := rm.beats[p]
				if ok && now.Sub(last) <= heartbeatTimeout {
					continue
				}
				if p == rm.host && rm.state == Waiting {
					rm.closeLocked("host timed out")
					break
				}
				rm.dropLocked(p)
				rm.notifyLocked(Event{Type: "left", Room: rm.snapshotLocked()})
			}
		}
		rm.mu.Unlock()
	}

	if len(reap) > 0 {
		r.mu.Lock()
		for _, id := range reap {
			delete(r.rooms, id)
		}
		r.mu.Unlock()
	}
}

// closeOnExit is the hook the launcher arms for game-server termination.
func (r *Registry) closeOnExit(id, reason string) {
	rm, err := r.get(id)
	if err != nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.state != Closed {
		rm.closeLocked(reason)
	}
}

// Watch subscribes to a room's events. The returned cancel func must be
// called when the watcher goes away.
func (r *Registry) Watch(id string) (<-chan Event, func(), error) {
	rm, err := r.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Event, 8)
	rm.mu.Lock()
	rm.subs[ch] = struct{}{}
	rm.mu.Unlock()
	cancel := func() {
		rm.mu.Lock()
		delete(rm.subs, ch)
		rm.mu.Unlock()
	}
	return ch, cancel, nil
}

// dropLocked removes a player from the roster. Callers hold rm.mu.
func (rm *room) dropLocked(player string) {
	for i, p := range rm.roster {
		if p == player {
			rm.roster = append(rm.roster[:i], rm.roster[i+1:]...)
			break
		}
	}
	delete(rm.beats, player)
}

func (rm *room) closeLocked(reason string) {
	rm.state = Closed
	rm.closedAt = time.Now()
	rm.closedReason = reason
	if rm.handle != nil {
		go rm.handle.Stop()
		rm.handle = nil
	}
	rm.notifyLocked(Event{Type: "closed", Room: rm.snapshotLocked()})
}

// notifyLocked fans an event out to subscribers without blocking; a slow
// watcher misses events rather than stalling the room.
func (rm *room) notifyLocked(ev Event) {
	for ch := range rm.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (rm *room) snapshotLocked() RoomInfo {
	players := make([]string, len(rm.roster))
	copy(players, rm.roster)
	info := RoomInfo{
		ID:           rm.id,
		GameID:       rm.gameID,
		VersionLabel: rm.version.Label,
		Host:         rm.host,
		State:        rm.state,
		Players:      players,
		MinPlayers:   rm.version.Manifest.MinPlayers,
		MaxPlayers:   rm.version.Manifest.MaxPlayers,
		CreatedAt:    rm.created,
		ClosedReason: rm.closedReason,
	}
	if rm.state == Running {
		info.EntryPoint = rm.version.Manifest.Entry
		if rm.conn != nil {
			c := *rm.conn
			info.Conn = &c
		}
	}
	return info
}
