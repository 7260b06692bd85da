package httpserver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/playdeck/playdeck/internal/accounts"
	"github.com/playdeck/playdeck/internal/archive"
	"github.com/playdeck/playdeck/internal/catalog"
	"github.com/playdeck/playdeck/internal/plays"
	"github.com/playdeck/playdeck/internal/ratings"
	repoaccounts "github.com/playdeck/playdeck/internal/repo/gorm/accounts"
	repocatalog "github.com/playdeck/playdeck/internal/repo/gorm/catalog"
	repoplays "github.com/playdeck/playdeck/internal/repo/gorm/plays"
	reporatings "github.com/playdeck/playdeck/internal/repo/gorm/ratings"
	"github.com/playdeck/playdeck/internal/rooms"
	"github.com/playdeck/playdeck/internal/runtime"
)

type nullHandle struct {
	once sync.Once
	done chan struct{}
}

func (h *nullHandle) Done() <-chan struct{} { return h.done }
func (h *nullHandle) Stop()                 { h.once.Do(func() { close(h.done) }) }

type nullHost struct{ port int }

func (h *nullHost) FreePort() (int, error) { h.port++; return 50000 + h.port, nil }
func (h *nullHost) Spawn(context.Context, runtime.SpawnSpec) (runtime.Handle, error) {
	return &nullHandle{done: make(chan struct{})}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, migrate := range []func(*gorm.DB) error{
		repocatalog.AutoMigrate, repoaccounts.AutoMigrate, repoplays.AutoMigrate, reporatings.AutoMigrate,
	} {
		if err := migrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	blobs, err := archive.Open(context.Background(), "", t.TempDir())
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	catRepo := repocatalog.NewRepo(db)
	cat := catalog.NewService(catRepo, blobs)
	acc := accounts.NewService(repoaccounts.NewRepo(db), accounts.NewTokenManager("test-secret", time.Hour), time.Minute)
	tracker := plays.NewTracker(repoplays.NewRepo(db))
	led := ratings.NewLedger(reporatings.NewRepo(db), catRepo, tracker)
	reg := rooms.NewRegistry(cat)
	launch := rooms.NewLauncher(reg, blobs, tracker, &nullHost{}, "127.0.0.1", t.TempDir())

	srv := New(cat, acc, tracker, led, reg, launch)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func gamePkg(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"manifest.json": `{"entry":"main.py","server_entry":"server.py","min_players":2,"max_players":4}`,
		"main.py":       "print('hi')",
		"server.py":     "print('srv')",
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// call sends a JSON request and decodes the JSON response.
func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func register(t *testing.T, ts *httptest.Server, role, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "pw-" + username}
	if st, body := call(t, ts, http.MethodPost, "/api/"+role+"s/register", "", creds); st != http.StatusCreated {
		t.Fatalf("register %s: %d %v", username, st, body)
	}
	st, body := call(t, ts, http.MethodPost, "/api/"+role+"s/login", "", creds)
	if st != http.StatusOK {
		t.Fatalf("login %s: %d %v", username, st, body)
	}
	return body["token"].(string)
}

func uploadGame(t *testing.T, ts *httptest.Server, token, name, label string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", name)
	_ = mw.WriteField("label", label)
	_ = mw.WriteField("description", "for tests")
	fw, err := mw.CreateFormFile("package", "pkg.zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(gamePkg(t)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/games", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Game struct {
			ID string `json:"id"`
		} `json:"game"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %d", resp.StatusCode)
	}
	return body.Game.ID
}

func TestAuthIsRequired(t *testing.T) {
	ts := newTestServer(t)
	if st, _ := call(t, ts, http.MethodGet, "/api/games", "", nil); st != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d", st)
	}
	if st, _ := call(t, ts, http.MethodGet, "/api/games", "garbage-token", nil); st != http.StatusUnauthorized {
		t.Fatalf("bad token list = %d", st)
	}
}

func TestUploadRequiresDeveloperRole(t *testing.T) {
	ts := newTestServer(t)
	player := register(t, ts, "player", "alice")
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/games", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer "+player)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("player upload = %d", resp.StatusCode)
	}
}

// Full journey: a developer publishes a game, players room up, play it, and
// rate it afterwards.
func TestEndToEndSession(t *testing.T) {
	ts := newTestServer(t)
	dev := register(t, ts, "developer", "studio")
	alice := register(t, ts, "player", "alice")
	bob := register(t, ts, "player", "bob")

	gameID := uploadGame(t, ts, dev, "Dice Duel", "v1")
	if gameID != "dice-duel" {
		t.Fatalf("game id = %q", gameID)
	}

	// rating before playing is rejected
	st, body := call(t, ts, http.MethodPost, "/api/ratings", alice,
		map[string]any{"game_id": gameID, "score": 5})
	if st != http.StatusConflict {
		t.Fatalf("premature rating = %d %v", st, body)
	}

	st, body = call(t, ts, http.MethodPost, "/api/rooms", alice, map[string]any{"game_id": gameID})
	if st != http.StatusCreated {
		t.Fatalf("create room = %d %v", st, body)
	}
	roomID := body["id"].(string)

	if st, body = call(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/start", alice, nil); st != http.StatusConflict {
		t.Fatalf("understaffed start = %d %v", st, body)
	}
	if st, body = call(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/join", bob, nil); st != http.StatusOK {
		t.Fatalf("join = %d %v", st, body)
	}

	st, body = call(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/start", bob, nil)
	if st != http.StatusOK {
		t.Fatalf("start = %d %v", st, body)
	}
	if body["entry_point"] != "main.py" {
		t.Fatalf("entry point = %v", body["entry_point"])
	}
	conn, _ := body["conn"].(map[string]any)
	if conn == nil || conn["host"] != "127.0.0.1" {
		t.Fatalf("conn = %v", body["conn"])
	}

	// both roster members may now rate; a resubmission overwrites
	for i, score := range []int{5, 4} {
		st, body = call(t, ts, http.MethodPost, "/api/ratings", alice,
			map[string]any{"game_id": gameID, "score": score})
		if st != http.StatusNoContent {
			t.Fatalf("rating #%d = %d %v", i, st, body)
		}
	}
	if st, body = call(t, ts, http.MethodPost, "/api/ratings", bob,
		map[string]any{"game_id": gameID, "score": 3}); st != http.StatusNoContent {
		t.Fatalf("bob rating = %d %v", st, body)
	}

	st, body = call(t, ts, http.MethodGet, "/api/games/"+gameID+"/ratings", alice, nil)
	if st != http.StatusOK {
		t.Fatalf("ratings = %d %v", st, body)
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v", body["count"])
	}
	if avg := body["avg"].(float64); avg != 3.5 {
		t.Fatalf("avg = %v", avg)
	}

	// close by the host, then the room reports closed
	if st, body = call(t, ts, http.MethodPost, "/api/rooms/"+roomID+"/close", alice, nil); st != http.StatusOK {
		t.Fatalf("close = %d %v", st, body)
	}
	st, body = call(t, ts, http.MethodGet, "/api/rooms/"+roomID, bob, nil)
	if st != http.StatusOK || body["state"] != "closed" {
		t.Fatalf("room after close = %d %v", st, body)
	}
}

func TestRatingScoreOutOfRange(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "player", "alice")
	for _, score := range []int{0, 6} {
		st, body := call(t, ts, http.MethodPost, "/api/ratings", alice,
			map[string]any{"game_id": "whatever", "score": score})
		if st != http.StatusBadRequest {
			t.Fatalf("score %d = %d %v", score, st, body)
		}
		if body["code"] != "invalid_score" {
			t.Fatalf("score %d code = %v", score, body["code"])
		}
	}
}

func TestErrorBodyShape(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "player", "alice")
	st, body := call(t, ts, http.MethodGet, "/api/games/nope", alice, nil)
	if st != http.StatusNotFound {
		t.Fatalf("status = %d", st)
	}
	if body["code"] != "game_not_found" {
		t.Fatalf("code = %v", body["code"])
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("missing request id: %v", body)
	}
	if body["message"] == "" {
		t.Fatalf("missing message: %v", body)
	}
}

func TestDownloadAndIntegrity(t *testing.T) {
	ts := newTestServer(t)
	dev := register(t, ts, "developer", "studio")
	alice := register(t, ts, "player", "alice")
	gameID := uploadGame(t, ts, dev, "Dice Duel", "v1")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/games/"+gameID+"/download", nil)
	req.Header.Set("Authorization", "Bearer "+alice)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("download = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	st, body := call(t, ts, http.MethodGet, fmt.Sprintf("/api/games/%s/integrity", gameID), alice, nil)
	if st != http.StatusOK {
		t.Fatalf("integrity = %d %v", st, body)
	}
	files, _ := body["files"].(map[string]any)
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
}
