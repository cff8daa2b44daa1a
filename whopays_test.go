/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGame(t *testing.T) (*httptest.Server, *GameManager) {
	t.Helper()

	cfg := validConfig()
	cfg.roster = []string{"A", "B", "C"}
	cfg.spinDuration = 20 * time.Millisecond
	cfg.sessionTimeout = 0

	ctx, cancel := context.WithCancel(context.Background())

	mux := httprouter.New()
	gm := registerWhoPaysGame(ctx, cfg, "/whopays", mux, newMetrics())
	gm.rng = fixedSource(0.125)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return srv, gm
}

func dial(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/whopays/" + gameID + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

// expect reads messages until one of type typ satisfies match.
func expect[T any](t *testing.T, conn *websocket.Conn, typ string, match func(T) bool) T {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", typ)

		var envelope struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &envelope))
		if envelope.Type != typ {
			continue
		}

		var msg T
		require.NoError(t, json.Unmarshal(data, &msg))
		if match == nil || match(msg) {
			return msg
		}
	}
}

func TestGameRound(t *testing.T) {
	srv, _ := newTestGame(t)
	conn := dial(t, srv, "round")

	state := expect(t, conn, "state", func(s StateMessage) bool { return s.Players == 1 })
	assert.Equal(t, "select", state.Phase)
	assert.Equal(t, []string{"A", "B", "C"}, state.Roster)
	assert.Empty(t, state.Selected)

	for _, name := range []string{"A", "B", "C"} {
		send(t, conn, ClientMessage{Type: "toggle", Name: name})
	}
	state = expect(t, conn, "state", func(s StateMessage) bool { return len(s.Selected) == 3 })
	assert.True(t, state.CanProceed)

	send(t, conn, ClientMessage{Type: "proceed"})
	expect(t, conn, "state", func(s StateMessage) bool { return s.Phase == "wheel" })

	send(t, conn, ClientMessage{Type: "spin"})
	spin := expect[SpinMessage](t, conn, "spin", nil)
	assert.Equal(t, 1845.0, spin.Rotation)
	assert.Equal(t, int64(20), spin.DurationMS)

	winner := expect[WinnerMessage](t, conn, "winner", nil)
	assert.Equal(t, "C", winner.Payer)
	assert.Equal(t, 2, winner.Index)

	state = expect(t, conn, "state", func(s StateMessage) bool { return s.Phase == "calculate" })
	assert.Equal(t, "C", state.Payer)
	assert.Equal(t, "settled", state.Wheel)
	assert.Equal(t, []Contribution{{Name: "A"}, {Name: "B"}}, state.Contributions)

	send(t, conn, ClientMessage{Type: "bill", Value: "1000"})
	send(t, conn, ClientMessage{Type: "payer_share", Value: "400"})
	send(t, conn, ClientMessage{Type: "contribution", Name: "A", Value: "300"})
	send(t, conn, ClientMessage{Type: "contribution", Name: "B", Value: "400"})
	send(t, conn, ClientMessage{Type: "calculate"})

	settlement := expect[SettlementMessage](t, conn, "settlement", nil)
	assert.Equal(t, OutcomeSurplus, settlement.Outcome)
	assert.Equal(t, "1000.00", settlement.Bill)
	assert.Equal(t, "1100.00", settlement.Collected)
	assert.Equal(t, "+100.00", settlement.Difference)
	assert.NotNil(t, settlement.Feedback.Confetti)

	state = expect(t, conn, "state", func(s StateMessage) bool { return s.Result != nil })
	assert.Equal(t, "+100.00", state.Result.Difference)

	send(t, conn, ClientMessage{Type: "reset"})
	state = expect(t, conn, "state", func(s StateMessage) bool { return s.Phase == "select" })
	assert.Empty(t, state.Selected)
	assert.Empty(t, state.Payer)
	assert.Empty(t, state.Contributions)
	assert.Nil(t, state.Result)
}

func TestGameRefusals(t *testing.T) {
	srv, _ := newTestGame(t)
	conn := dial(t, srv, "refusals")
	expect[StateMessage](t, conn, "state", nil)

	send(t, conn, ClientMessage{Type: "toggle", Name: "A"})
	send(t, conn, ClientMessage{Type: "proceed"})
	refused := expect[SimpleMessage](t, conn, "refused", nil)
	assert.Equal(t, ErrTooFewParticipants.Error(), refused.Message)

	send(t, conn, ClientMessage{Type: "spin"})
	refused = expect[SimpleMessage](t, conn, "refused", nil)
	assert.Equal(t, ErrWrongPhase.Error(), refused.Message)

	send(t, conn, ClientMessage{Type: "toggle", Name: "Nobody"})
	refused = expect[SimpleMessage](t, conn, "refused", nil)
	assert.Equal(t, ErrUnknownParticipant.Error(), refused.Message)
}

func TestGameSharedBetweenClients(t *testing.T) {
	srv, _ := newTestGame(t)

	first := dial(t, srv, "shared")
	expect(t, first, "state", func(s StateMessage) bool { return s.Players == 1 })

	second := dial(t, srv, "shared")
	expect(t, first, "state", func(s StateMessage) bool { return s.Players == 2 })
	expect(t, second, "state", func(s StateMessage) bool { return s.Players == 2 })

	send(t, second, ClientMessage{Type: "add", Name: "Guest"})

	state := expect(t, first, "state", func(s StateMessage) bool { return len(s.Selected) == 1 })
	assert.Equal(t, []string{"Guest"}, state.Selected)
	assert.Contains(t, state.Roster, "Guest")

	other := dial(t, srv, "elsewhere")
	state = expect[StateMessage](t, other, "state", nil)
	assert.Empty(t, state.Selected, "game IDs are isolated")
	assert.NotContains(t, state.Roster, "Guest")
}

func TestRedirectNewGame(t *testing.T) {
	srv, _ := newTestGame(t)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(srv.URL + "/whopays")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/whopays/"), location)
	assert.Len(t, strings.TrimPrefix(location, "/whopays/"), 8)
}

func TestIndexSetsPlayerCookie(t *testing.T) {
	srv, _ := newTestGame(t)

	resp, err := http.Get(srv.URL + "/whopays/abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "app.js")

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			found = true
			_, err := uuid.Parse(c.Value)
			assert.NoError(t, err)
		}
	}
	assert.True(t, found, "player cookie not set")
}

func TestQRCode(t *testing.T) {
	srv, _ := newTestGame(t)

	resp, err := http.Get(srv.URL + "/whopays/abc/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
}

func TestNewGameIDAlphabet(t *testing.T) {
	_, gm := newTestGame(t)

	seen := make(map[string]bool)
	for range 200 {
		id := gm.newGameID()
		assert.Regexp(t, `^[A-Za-z0-9]{8}$`, id)
		seen[id] = true
	}
	assert.Len(t, seen, 200)
}

func TestGameRosterFull(t *testing.T) {
	srv, _ := newTestGame(t)
	conn := dial(t, srv, "crowded")
	expect[StateMessage](t, conn, "state", nil)

	for i := range MaxRosterSize - 3 {
		send(t, conn, ClientMessage{Type: "add", Name: fmt.Sprintf("Guest %d", i)})
	}
	expect(t, conn, "state", func(s StateMessage) bool { return len(s.Roster) == MaxRosterSize })

	send(t, conn, ClientMessage{Type: "add", Name: "One more"})
	refused := expect[SimpleMessage](t, conn, "refused", nil)
	assert.Equal(t, ErrRosterFull.Error(), refused.Message)
}

func TestReapIdleGames(t *testing.T) {
	_, gm := newTestGame(t)
	cfg := validConfig()

	hub := gm.getHub(cfg, "idle")
	assert.Same(t, hub, gm.getHub(cfg, "idle"))

	assert.Zero(t, gm.reap(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, gm.reap(time.Now().Add(time.Minute)))

	select {
	case <-hub.done:
	case <-time.After(time.Second):
		t.Fatal("reaped hub was not stopped")
	}

	assert.NotSame(t, hub, gm.getHub(cfg, "idle"))
}
