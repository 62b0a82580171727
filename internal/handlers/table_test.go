// internal/handlers/table_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/scoretracker/internal/auth"
	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/jason-s-yu/scoretracker/internal/persistence"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu    sync.Mutex
	games []*models.GameState
}

func (f *fakeRecorder) RecordGameResult(_ context.Context, state *models.GameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, state)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.games)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, kv persistence.KeyValueStore, rec ResultRecorder) (*TableServer, http.Handler) {
	t.Helper()
	require.NoError(t, auth.Init(time.Hour))
	s := NewTableServer(TableServerOptions{KV: kv, Results: rec, Logger: quietLogger()})
	return s, NewRouter(s, RouterOptions{})
}

func createTable(t *testing.T, h http.Handler, body string) (*http.Cookie, createTableResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/table/create", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp createTableResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	for _, c := range rr.Result().Cookies() {
		if c.Name == tableCookie {
			return c, resp
		}
	}
	t.Fatal("no table_token cookie set")
	return nil, resp
}

func postIntent(t *testing.T, h http.Handler, cookie *http.Cookie, intent string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/table/action", bytes.NewBufferString(intent))
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) IntentResult {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res IntentResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func startTwoPlayerGame(t *testing.T, h http.Handler, cookie *http.Cookie) {
	t.Helper()
	res := decodeResult(t, postIntent(t, h, cookie, `{"type":"configure_players","names":["Ann","Bob"],"count":2}`))
	require.Len(t, res.Roster, 2)
	res = decodeResult(t, postIntent(t, h, cookie, `{"type":"start_game"}`))
	require.Equal(t, models.StatusActive, res.State.GameStatus)
}

func TestTableFlow(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	cookie, created := createTable(t, h, "")
	assert.Equal(t, game.DefaultRules(), created.Rules)

	startTwoPlayerGame(t, h, cookie)

	res := decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":1500}`))
	assert.Equal(t, 1500, res.State.CumulativeTotal(1))
	assert.Equal(t, 1, res.State.CurrentPlayerIndex)

	res = decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":"350"}`))
	assert.Equal(t, 350, res.State.CumulativeTotal(2))
	assert.Equal(t, 2, res.State.CurrentRound)

	req := httptest.NewRequest(http.MethodGet, "/table/standings", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var standings []models.Standing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &standings))
	require.Len(t, standings, 2)
	assert.Equal(t, "Ann", standings[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/table/history", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var history models.History
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history.Rows, 2)
	assert.Equal(t, 1500, history.Totals[1])
}

func TestInvalidScoreRejected(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	cookie, _ := createTable(t, h, "")
	startTwoPlayerGame(t, h, cookie)

	for _, body := range []string{
		`{"type":"submit_score","score":"abc"}`,
		`{"type":"submit_score","score":12.5}`,
		`{"type":"submit_score"}`,
	} {
		rr := postIntent(t, h, cookie, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/table/state", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	res := decodeResult(t, rr)
	assert.Equal(t, 0, res.State.CurrentPlayerIndex)
	assert.Empty(t, res.State.Rounds[0].Scores)
}

func TestRejectionStatusCodes(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	cookie, _ := createTable(t, h, "")

	assert.Equal(t, http.StatusConflict, postIntent(t, h, cookie, `{"type":"award_star"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postIntent(t, h, cookie, `{"type":"configure_players","count":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, postIntent(t, h, cookie, `{"type":"dance"}`).Code)

	startTwoPlayerGame(t, h, cookie)
	assert.Equal(t, http.StatusConflict, postIntent(t, h, cookie, `{"type":"revoke_star"}`).Code)
	assert.Equal(t, http.StatusNotFound, postIntent(t, h, cookie, `{"type":"edit_score","roundIndex":7,"playerId":1,"score":5}`).Code)
}

func TestMissingTokenRejected(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/table/state", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/table/state", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateTableWithRules(t *testing.T) {
	kv := persistence.NewMemoryStore()
	_, h := newTestServer(t, kv, nil)
	cookie, created := createTable(t, h, `{"rules":{"winThreshold":500,"starsToWin":2}}`)
	assert.Equal(t, 500, created.Rules.WinThreshold)

	startTwoPlayerGame(t, h, cookie)
	res := decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":600}`))
	assert.Equal(t, models.StatusFinalRound, res.State.GameStatus)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/table/create", strings.NewReader(`{"rules":{"starsToWin":0}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// startWithKeyFiles mimics a process start with JWT key paths configured.
func startWithKeyFiles(t *testing.T, kv persistence.KeyValueStore, dir string) http.Handler {
	t.Helper()
	// drop whatever the previous "process" held in memory
	require.NoError(t, auth.Init(time.Hour))
	require.NoError(t, auth.InitFromPath(filepath.Join(dir, "jwt.key"), filepath.Join(dir, "jwt.pub"), time.Hour))
	s := NewTableServer(TableServerOptions{KV: kv, Logger: quietLogger()})
	return NewRouter(s, RouterOptions{})
}

func TestTableRehydratesAfterRestart(t *testing.T) {
	kv := persistence.NewMemoryStore()
	keyDir := t.TempDir()
	h := startWithKeyFiles(t, kv, keyDir)
	cookie, _ := createTable(t, h, `{"rules":{"winThreshold":500}}`)
	startTwoPlayerGame(t, h, cookie)
	decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":100}`))

	// new process: keys reloaded from disk, tables reloaded from storage
	h2 := startWithKeyFiles(t, kv, keyDir)

	res := decodeResult(t, postIntent(t, h2, cookie, `{"type":"submit_score","score":600}`))
	assert.Equal(t, 100, res.State.CumulativeTotal(1))
	assert.Equal(t, 600, res.State.CumulativeTotal(2))
	// Bob crossed 500 as the last seat, so the round closes on the spot
	assert.Equal(t, models.StatusFinished, res.State.GameStatus, "table rules survive the restart")
	require.NotNil(t, res.State.Winner)
	assert.Equal(t, 2, res.State.Winner.PlayerID)
	assert.Equal(t, models.WinThreshold, res.State.Winner.WinCondition)
}

func TestThrowawayKeysDoNotSurviveRestart(t *testing.T) {
	kv := persistence.NewMemoryStore()
	_, h := newTestServer(t, kv, nil)
	cookie, _ := createTable(t, h, "")

	_, h2 := newTestServer(t, kv, nil)
	assert.Equal(t, http.StatusUnauthorized, postIntent(t, h2, cookie, `{"type":"start_game"}`).Code)
}

func TestFinishedGameIsRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	_, h := newTestServer(t, persistence.NewMemoryStore(), rec)
	cookie, _ := createTable(t, h, "")
	startTwoPlayerGame(t, h, cookie)
	decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":300}`))

	res := decodeResult(t, postIntent(t, h, cookie, `{"type":"end_game"}`))
	require.NotNil(t, res.State.Winner)
	assert.Equal(t, models.WinManual, res.State.Winner.WinCondition)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	res = decodeResult(t, postIntent(t, h, cookie, `{"type":"new_game"}`))
	assert.Equal(t, models.StatusSetup, res.State.GameStatus)
	res = decodeResult(t, postIntent(t, h, cookie, `{"type":"take_prefill"}`))
	require.Len(t, res.Prefill, 2)
	assert.Equal(t, "Ann", res.Prefill[0].Name)
}

func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) game.GameEvent {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev game.GameEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestTableWebSocketFeed(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	cookie, _ := createTable(t, h, "")
	startTwoPlayerGame(t, h, cookie)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/table/ws"
	c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPHeader:   http.Header{"Cookie": []string{cookie.String()}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	ev := readEvent(t, ctx, c)
	assert.Equal(t, game.EventStateSync, ev.Type)
	require.NotNil(t, ev.State)
	assert.Equal(t, models.StatusActive, ev.State.GameStatus)

	// intent over the socket, result arrives as a broadcast
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"submit_score","score":700}`)))
	ev = readEvent(t, ctx, c)
	assert.Equal(t, game.EventStateSync, ev.Type)
	assert.Equal(t, 700, ev.State.CumulativeTotal(1))

	// rejection goes back to the sender only
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"submit_score","score":"x"}`)))
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var wsErr map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wsErr))
	assert.Equal(t, "error", wsErr["type"])
	assert.EqualValues(t, http.StatusBadRequest, wsErr["code"])

	// a change made over HTTP reaches the socket too
	decodeResult(t, postIntent(t, h, cookie, `{"type":"award_star"}`))
	ev = readEvent(t, ctx, c)
	assert.Equal(t, game.EventStarAwarded, ev.Type)
	ev = readEvent(t, ctx, c)
	assert.Equal(t, game.EventStateSync, ev.Type)
	assert.Equal(t, 1, ev.State.Players[1].Stars)
}

func TestWebSocketRequiresToken(t *testing.T) {
	_, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/table/ws", &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIdleTablesAreEvictedAndReloaded(t *testing.T) {
	s, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	cookie, _ := createTable(t, h, "")
	startTwoPlayerGame(t, h, cookie)
	decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":250}`))
	require.Equal(t, 1, s.Tables.Len())
	require.Equal(t, 1, s.hubs.len())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, s.EvictIdle(time.Millisecond))
	assert.Zero(t, s.Tables.Len())
	assert.Zero(t, s.hubs.len())

	// next request reloads the table from its snapshot
	res := decodeResult(t, postIntent(t, h, cookie, `{"type":"submit_score","score":50}`))
	assert.Equal(t, 250, res.State.CumulativeTotal(1))
	assert.Equal(t, 50, res.State.CumulativeTotal(2))
	assert.Equal(t, 1, s.Tables.Len())
}

func TestTableWithLiveFeedIsKept(t *testing.T) {
	s, h := newTestServer(t, persistence.NewMemoryStore(), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	cookie, _ := createTable(t, h, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/table/ws", &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
		HTTPHeader:   http.Header{"Cookie": []string{cookie.String()}},
	})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")
	readEvent(t, ctx, c)

	time.Sleep(5 * time.Millisecond)
	assert.Zero(t, s.EvictIdle(time.Millisecond))
	assert.Equal(t, 1, s.Tables.Len())
}
