package rooms

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/fault"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/runtime"
)

// LaunchResult is what clients need to enter a started session.
type LaunchResult struct {
	Room       RoomInfo  `json:"room"`
	EntryPoint string    `json:"entry_point"`
	Conn       *ConnInfo `json:"conn,omitempty"`
}

// Launcher starts sessions: it validates the room, brings up the game-server
// process when the package ships one, marks every roster member as having
// played, and flips the room to Running.
type Launcher struct {
	reg        *Registry
	store      *archive.Store
	tracker    *plays.Tracker
	procs      runtime.Host
	publicHost string
	runDir     string
}

func NewLauncher(reg *Registry, store *archive.Store, tracker *plays.Tracker, procs runtime.Host, publicHost, runDir string) *Launcher {
	return &Launcher{
		reg:        reg,
		store:      store,
		tracker:    tracker,
		procs:      procs,
		publicHost: publicHost,
		runDir:     runDir,
	}
}

// Start launches the session for a room. The caller must be in the roster and
// the room must be Waiting with enough players. On any failure before the
// final state flip the room stays Waiting and any spawned process is killed,
// so a failed start can simply be retried.
func (l *Launcher) Start(ctx context.Context, roomID, caller string) (LaunchResult, error) {
	rm, err := l.reg.get(roomID)
	if err != nil {
		return LaunchResult{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !contains(rm.roster, caller) {
		return LaunchResult{}, fault.Newf(fault.NotAuthorized, roomID, "%s is not in room %s", caller, roomID)
	}
	if rm.state != Waiting {
		return LaunchResult{}, fault.Newf(fault.RoomNotWaiting, roomID, "room %s is %s, not waiting", roomID, rm.state)
	}
	man := rm.version.Manifest
	if len(rm.roster) < man.MinPlayers {
		return LaunchResult{}, fault.Newf(fault.InsufficientPlayers, roomID,
			"room %s has %d players, needs at least %d", roomID, len(rm.roster), man.MinPlayers)
	}

	var (
		handle runtime.Handle
		conn   *ConnInfo
	)
	if man.ServerEntry != "" {
		handle, conn, err = l.bringUp(ctx, rm)
		if err != nil {
			return LaunchResult{}, fault.Wrap(fault.LaunchFailed, roomID, "launch game server", err)
		}
	}

	if err := l.tracker.MarkStartedAll(ctx, rm.roster, rm.gameID); err != nil {
		if handle != nil {
			handle.Stop()
		}
		return LaunchResult{}, fault.Wrap(fault.LaunchFailed, roomID, "record plays", err)
	}

	rm.state = Running
	rm.conn = conn
	rm.handle = handle
	if handle != nil {
		go l.watchExit(rm.id, handle)
	}
	snap := rm.snapshotLocked()
	rm.notifyLocked(Event{Type: "started", Room: snap})
	slog.Info("session started", "room", rm.id, "game", rm.gameID, "version", rm.version.Label, "players", len(rm.roster))
	return LaunchResult{Room: snap, EntryPoint: man.Entry, Conn: conn}, nil
}

// bringUp allocates a port, unpacks the pinned version, and spawns its server
// entry. Callers hold rm.mu.
func (l *Launcher) bringUp(ctx context.Context, rm *room) (runtime.Handle, *ConnInfo, error) {
	port, err := l.procs.FreePort()
	if err != nil {
		return nil, nil, err
	}
	dir := filepath.Join(l.runDir, rm.id)
	if err := l.store.Unpack(ctx, rm.version.BlobKey, dir); err != nil {
		return nil, nil, err
	}
	handle, err := l.procs.Spawn(ctx, runtime.SpawnSpec{
		Dir:         dir,
		Entry:       rm.version.Manifest.ServerEntry,
		RoomID:      rm.id,
		Port:        port,
		WaitTimeout: 3 * time.Second,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, nil, err
	}
	return handle, &ConnInfo{Host: l.publicHost, Port: port}, nil
}

// watchExit closes the room once its game server terminates and cleans up the
// unpacked package.
func (l *Launcher) watchExit(roomID string, handle runtime.Handle) {
	<-handle.Done()
	l.reg.closeOnExit(roomID, "game server exited")
	_ = os.RemoveAll(filepath.Join(l.runDir, roomID))
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
