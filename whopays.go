// Who Pays? Game
//
// Friends pick who is at the table, spin a wheel to decide who covers the
// bill, then enter what everyone handed over to see whether the bill is
// covered.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - Every connected browser sees and drives the same round
// - Free-form names can be added next to the configured roster
// - The hub owns the spin timer and reveals the payer when it fires
// - Lenient amount entry: anything unparseable counts as zero
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type  string `json:"type"`            // "toggle", "add", "proceed", "back", "spin", "bill", "payer_share", "contribution", "calculate", "dismiss", "reset"
	Name  string `json:"name,omitempty"`  // toggle / add / contribution
	Value string `json:"value,omitempty"` // bill / payer_share / contribution
}

// SimpleMessage is for notifications aimed at a single client.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SettlementMessage carries a bill check. Amounts are fixed to two decimals.
type SettlementMessage struct {
	Type       string   `json:"type"` // "settlement"
	Outcome    Outcome  `json:"outcome"`
	Bill       string   `json:"bill"`
	Collected  string   `json:"collected"`
	Difference string   `json:"difference"`
	Feedback   Feedback `json:"feedback"`
}

func newSettlementMessage(s Settlement) SettlementMessage {
	return SettlementMessage{
		Type:       "settlement",
		Outcome:    s.Outcome,
		Bill:       s.Bill.StringFixed(2),
		Collected:  s.Collected.StringFixed(2),
		Difference: s.SignedDifference(),
		Feedback:   s.Feedback(),
	}
}

// StateMessage is the full round, broadcast after every accepted action.
type StateMessage struct {
	Type          string             `json:"type"` // "state"
	Phase         string             `json:"phase"`
	Roster        []string           `json:"roster"`
	Selected      []string           `json:"selected"`
	CanProceed    bool               `json:"can_proceed"`
	Wheel         string             `json:"wheel"`
	Rotation      float64            `json:"rotation"`
	Payer         string             `json:"payer,omitempty"`
	Bill          string             `json:"bill"`
	PayerShare    string             `json:"payer_share"`
	Contributions []Contribution     `json:"contributions"`
	Result        *SettlementMessage `json:"result,omitempty"`
	Players       int                `json:"players"`
}

// SpinMessage tells clients where the wheel will come to rest.
type SpinMessage struct {
	Type       string  `json:"type"` // "spin"
	Rotation   float64 `json:"rotation"`
	DurationMS int64   `json:"duration_ms"`
}

// WinnerMessage announces the payer once the wheel has landed.
type WinnerMessage struct {
	Type  string `json:"type"` // "winner"
	Payer string `json:"payer"`
	Index int    `json:"index"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	round   *Round
	pending SpinOutcome
	spinSeq int

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest
	landed   chan int
	done     chan struct{}

	stopOnce sync.Once

	spinDuration time.Duration
	rng          RandomSource
	metrics      *Metrics

	// mu guards the timestamps, which the reaper reads.
	mu         sync.RWMutex
	lastActive time.Time
}

func newHub(gameID string, roster []string, spinDuration time.Duration, rng RandomSource, metrics *Metrics) *Hub {
	now := time.Now()
	return &Hub{
		id:           gameID,
		clients:      make(map[*Client]bool),
		round:        newRound(roster),
		register:     make(chan *Client),
		unreg:        make(chan *Client),
		actions:      make(chan actionRequest),
		landed:       make(chan int),
		done:         make(chan struct{}),
		spinDuration: spinDuration,
		rng:          rng,
		metrics:      metrics,
		lastActive:   now,
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// run owns the round and the client set; nothing else touches them.
func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.touch()
			h.clients[c] = true
			h.broadcastState()

		case c := <-h.unreg:
			h.touch()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.broadcastState()
			}

		case ar := <-h.actions:
			h.touch()
			h.handleAction(cfg, ar)

		case seq := <-h.landed:
			h.touch()
			h.handleLanding(cfg, seq)

		case <-h.done:
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
			}

			return
		}
	}
}

func (h *Hub) handleAction(cfg *Config, ar actionRequest) {
	r := h.round
	msg := ar.msg

	var err error

	switch msg.Type {
	case "toggle":
		err = r.Toggle(msg.Name)
	case "add":
		err = r.Add(msg.Name)
		if err == nil {
			logf(cfg, "GAMES: Added %q to %s", strings.TrimSpace(msg.Name), h.id)
		}
	case "proceed":
		err = r.Proceed()
	case "back":
		err = r.Back()
	case "spin":
		err = h.startSpin(cfg)
	case "bill":
		err = r.SetBill(msg.Value)
	case "payer_share":
		err = r.SetPayerShare(msg.Value)
	case "contribution":
		err = r.SetContribution(msg.Name, msg.Value)
	case "calculate":
		var s Settlement
		s, err = r.Calculate()
		if err == nil {
			h.metrics.settled(s.Outcome)
			h.broadcast(newSettlementMessage(s))
			logf(cfg, "GAMES: Settled %s as %s (%s)", h.id, s.Outcome, s.SignedDifference())
		}
	case "dismiss":
		r.Dismiss()
	case "reset":
		err = r.Reset()
		if err == nil {
			h.pending = SpinOutcome{}
			logf(cfg, "GAMES: Reset %s", h.id)
		}
	default:
		// ignore unknown types
		return
	}

	if err != nil {
		h.sendTo(ar.client, SimpleMessage{
			Type:    "refused",
			Message: err.Error(),
		})

		return
	}

	h.broadcastState()
}

func (h *Hub) startSpin(cfg *Config) error {
	outcome, err := h.round.Spin(h.rng)
	if err != nil {
		return err
	}

	h.pending = outcome
	h.spinSeq++
	seq := h.spinSeq
	h.metrics.spins.Inc()

	h.broadcast(SpinMessage{
		Type:       "spin",
		Rotation:   outcome.Rotation,
		DurationMS: h.spinDuration.Milliseconds(),
	})

	logf(cfg, "GAMES: Spinning %s across %d participants", h.id, h.round.selection.Len())

	time.AfterFunc(h.spinDuration, func() {
		select {
		case h.landed <- seq:
		case <-h.done:
		}
	})

	return nil
}

func (h *Hub) handleLanding(cfg *Config, seq int) {
	if seq != h.spinSeq {
		return
	}

	payer, err := h.round.Land()
	if err != nil {
		if !errors.Is(err, ErrNotSpinning) {
			logf(cfg, "ERROR: Landing %s: %v", h.id, err)
		}

		return
	}

	logf(cfg, "GAMES: %q pays in %s", payer, h.id)

	h.broadcast(WinnerMessage{
		Type:  "winner",
		Payer: payer,
		Index: h.pending.Index,
	})
	h.broadcastState()
}

func (h *Hub) stateMessage() StateMessage {
	snap := h.round.Snapshot()

	msg := StateMessage{
		Type:          "state",
		Phase:         snap.Phase.String(),
		Roster:        snap.Roster,
		Selected:      snap.Selected,
		CanProceed:    snap.CanProceed,
		Wheel:         snap.Wheel.String(),
		Rotation:      snap.Rotation,
		Payer:         snap.Payer,
		Bill:          snap.Bill,
		PayerShare:    snap.PayerShare,
		Contributions: snap.Contributions,
		Players:       len(h.clients),
	}

	if msg.Selected == nil {
		msg.Selected = []string{}
	}
	if msg.Contributions == nil {
		msg.Contributions = []Contribution{}
	}
	if snap.Result != nil {
		result := newSettlementMessage(*snap.Result)
		msg.Result = &result
	}

	return msg
}

func (h *Hub) broadcastState() {
	h.broadcast(h.stateMessage())
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.sendTo(c, msg)
	}
}

// sendTo drops clients that cannot keep up.
func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// submit hands a client message to the hub, giving up if the hub is gone.
func (h *Hub) submit(ar actionRequest) bool {
	select {
	case h.actions <- ar:
		return true
	case <-h.done:
		return false
	}
}

// stop ends the hub and disconnects its clients.
func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	playerCookieName = "whopays_id"
	maxMessageSize   = 4096
)

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated session.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	metrics     *Metrics

	// rng is shared by all hubs; nil uses the global source.
	rng RandomSource
}

func newGameManager(ctx context.Context, idleTimeout time.Duration, metrics *Metrics) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		metrics:     metrics,
	}

	if idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		gm.stopAll()
	}()

	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID, cfg.roster, cfg.spinDuration, gm.rng, gm.metrics)
	gm.hubs[gameID] = hub
	gm.metrics.liveGames.Set(float64(len(gm.hubs)))

	go hub.run(cfg)

	return hub
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// Bytes at or above this are rejected so every letter is equally likely.
	const limit = 256 - 256%len(letters)

	for {
		out := make([]byte, 0, 8)
		buf := make([]byte, 16)
		for len(out) < cap(out) {
			if _, err := rand.Read(buf); err != nil {
				panic("crypto/rand failure: " + err.Error())
			}

			for _, b := range buf {
				if int(b) < limit && len(out) < cap(out) {
					out = append(out, letters[int(b)%len(letters)])
				}
			}
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			gm.metrics.gamesCreated.Inc()

			return id
		}
	}
}

// reap removes hubs that have been idle since before cutoff.
func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(gm.hubs, id)
			hub.stop()
			reaped++
		}
	}
	gm.metrics.liveGames.Set(float64(len(gm.hubs)))

	return reaped
}

func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		case <-ctx.Done():
			return
		}
	}
}

func (gm *GameManager) stopAll() {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for id, hub := range gm.hubs {
		delete(gm.hubs, id)
		hub.stop()
	}
	gm.metrics.liveGames.Set(0)
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		hub := gm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading %s for %s: %v", gameID, realIP(r), err)
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s connected to %s from %s", playerID, gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !h.submit(actionRequest{client: c, msg: msg}) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if ps.ByName("gameid") == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

//go:embed whopays/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(cfg, w, r)

		_, _ = w.Write(indexHTML)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerWhoPaysGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerWhoPaysGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, metrics *Metrics) *GameManager {
	gm := newGameManager(ctx, cfg.sessionTimeout, metrics)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))

	return gm
}
