// Package websocket serves live day views. Each connection selects a doctor
// and day; the hub tracks which connections watch which doctor so a schedule
// change can be pushed to every open view of that doctor.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/dayview/internal/domain/scheduling"
)

// Event types sent to clients.
const (
	TypeDayView = "day_view"
	TypeError   = "error"
)

// Client actions.
const (
	ActionSelect  = "select"
	ActionRefresh = "refresh"
	ActionClose   = "close"
)

// Event is an outbound message. Generation orders day views on one
// connection: a client keeps only the highest generation it has seen.
type Event struct {
	Type       string          `json:"type"`
	Generation uint64          `json:"generation,omitempty"`
	DoctorID   string          `json:"doctor_id,omitempty"`
	Date       string          `json:"date,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ClientMessage is an inbound message. Date is YYYY-MM-DD; empty means today.
type ClientMessage struct {
	Action   string `json:"action"`
	DoctorID string `json:"doctor_id,omitempty"`
	Date     string `json:"date,omitempty"`
}

// DayViewService is the part of the scheduling service a live view needs.
type DayViewService interface {
	scheduling.DayViewSource
	Location() *time.Location
	Today() time.Time
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connected day view.
type Client struct {
	ID   string
	Send chan []byte

	hub     *Hub
	conn    Conn
	fetcher *scheduling.Fetcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	selected *scheduling.DayViewRequest
	closed   bool
}

// Hub tracks connected clients and the doctor each one is watching.
// All operations are thread-safe.
type Hub struct {
	svc DayViewService
	log zerolog.Logger

	mu      sync.RWMutex
	doctors map[string]map[*Client]struct{} // doctor id -> watching clients
	all     map[*Client]struct{}
}

func NewHub(svc DayViewService, logger zerolog.Logger) *Hub {
	return &Hub{
		svc:     svc,
		log:     logger,
		doctors: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// NewClient creates a client bound to conn. It is not registered yet.
func (h *Hub) NewClient(conn Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:      uuid.New().String(),
		Send:    make(chan []byte, 16),
		hub:     h,
		conn:    conn,
		fetcher: scheduling.NewFetcher(h.svc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister removes the client, aborts its in-flight fetch and closes its
// Send channel. Calling it twice is harmless.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return
	}
	h.unwatchLocked(client)
	delete(h.all, client)
	h.mu.Unlock()

	client.fetcher.Cancel()
	client.cancel()

	client.mu.Lock()
	client.closed = true
	close(client.Send)
	client.mu.Unlock()
}

// Select points the client at a new doctor and day and starts loading it.
// The watcher entry and the client's selection change together under h.mu,
// so concurrent selections never leave a watcher behind.
func (h *Hub) Select(client *Client, req scheduling.DayViewRequest) {
	h.mu.Lock()
	h.unwatchLocked(client)
	if h.doctors[req.DoctorID] == nil {
		h.doctors[req.DoctorID] = make(map[*Client]struct{})
	}
	h.doctors[req.DoctorID][client] = struct{}{}
	client.mu.Lock()
	client.selected = &req
	client.mu.Unlock()
	h.mu.Unlock()

	client.load(req)
}

// Deselect stops the client's view: the in-flight fetch is abandoned and the
// client no longer receives refreshes.
func (h *Hub) Deselect(client *Client) {
	h.mu.Lock()
	h.unwatchLocked(client)
	client.mu.Lock()
	client.selected = nil
	client.mu.Unlock()
	h.mu.Unlock()

	client.fetcher.Cancel()
}

func (h *Hub) unwatchLocked(client *Client) {
	client.mu.Lock()
	sel := client.selected
	client.mu.Unlock()
	if sel == nil {
		return
	}
	if watchers, ok := h.doctors[sel.DoctorID]; ok {
		delete(watchers, client)
		if len(watchers) == 0 {
			delete(h.doctors, sel.DoctorID)
		}
	}
}

// Refresh reloads every open view of doctorID. It returns how many views
// were refreshed.
func (h *Hub) Refresh(doctorID string) int {
	h.mu.RLock()
	watchers := make([]*Client, 0, len(h.doctors[doctorID]))
	for c := range h.doctors[doctorID] {
		watchers = append(watchers, c)
	}
	h.mu.RUnlock()

	for _, c := range watchers {
		c.reload()
	}
	return len(watchers)
}

// RefreshAll reloads every open view.
func (h *Hub) RefreshAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range clients {
		if c.reload() {
			n++
		}
	}
	return n
}

// ProcessMessage dispatches one inbound message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case ActionSelect:
		req, err := h.parseRequest(msg)
		if err != nil {
			client.send(Event{Type: TypeError, DoctorID: msg.DoctorID, Date: msg.Date, Error: err.Error()})
			return
		}
		h.Select(client, req)
	case ActionRefresh:
		client.reload()
	case ActionClose:
		h.Deselect(client)
	default:
		client.send(Event{Type: TypeError, Error: fmt.Sprintf("unknown action %q", msg.Action)})
	}
}

func (h *Hub) parseRequest(msg ClientMessage) (scheduling.DayViewRequest, error) {
	if msg.DoctorID == "" {
		return scheduling.DayViewRequest{}, scheduling.ErrMissingDoctorID
	}
	date := h.svc.Today()
	if msg.Date != "" {
		d, err := time.ParseInLocation(time.DateOnly, msg.Date, h.svc.Location())
		if err != nil {
			return scheduling.DayViewRequest{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", msg.Date)
		}
		date = d
	}
	return scheduling.DayViewRequest{DoctorID: msg.DoctorID, Date: date}, nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// WatcherCount returns how many clients are watching doctorID.
func (h *Hub) WatcherCount(doctorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.doctors[doctorID])
}

func (c *Client) reload() bool {
	c.mu.Lock()
	sel := c.selected
	c.mu.Unlock()
	if sel == nil {
		return false
	}
	c.load(*sel)
	return true
}

// load starts fetching req in the background. The result is delivered
// unless a later load or a deselect has superseded it. A doctor that does not
// resolve is reported as an error event.
func (c *Client) load(req scheduling.DayViewRequest) {
	c.fetcher.Go(c.ctx, req, func(view *scheduling.DayView, gen uint64, err error) {
		if errors.Is(err, scheduling.ErrStale) {
			return
		}
		ev := Event{
			Type:       TypeDayView,
			Generation: gen,
			DoctorID:   req.DoctorID,
			Date:       req.Date.Format(time.DateOnly),
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.hub.log.Warn().Err(err).Str("client_id", c.ID).Str("doctor_id", req.DoctorID).Msg("day view load failed")
			ev.Type = TypeError
			ev.Error = err.Error()
			c.send(ev)
			return
		}
		if view.Doctor == nil {
			ev.Type = TypeError
			ev.Error = fmt.Errorf("%w: %s", scheduling.ErrDoctorNotFound, req.DoctorID).Error()
			c.send(ev)
			return
		}
		data, err := json.Marshal(view)
		if err != nil {
			c.hub.log.Error().Err(err).Msg("websocket: failed to marshal day view")
			return
		}
		ev.Data = data
		c.send(ev)
	})
}

// send queues ev without blocking. A full buffer drops the event; the
// client's next refresh catches up.
func (c *Client) send(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.hub.log.Error().Err(err).Msg("websocket: failed to marshal event")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.hub.log.Warn().Str("client_id", c.ID).Msg("websocket: send buffer full, dropping event")
	}
}

// Handler upgrades HTTP connections into live day views.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates a handler bound to hub. allowedOrigins limits browser
// origins; an empty list or "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: logger,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers the live day-view endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/day-view", h.HandleConnect)
}

// HandleConnect upgrades the connection, registers the client and starts
// its pumps. doctor_id and date query parameters make an initial selection.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := h.hub.NewClient(ws)
	h.hub.Register(client)
	h.log.Debug().Str("client_id", client.ID).Str("remote_ip", c.RealIP()).Msg("day view connected")

	go h.hub.writePump(client)
	go h.hub.readPump(client)

	if doctorID := c.QueryParam("doctor_id"); doctorID != "" {
		h.hub.ProcessMessage(client, ClientMessage{Action: ActionSelect, DoctorID: doctorID, Date: c.QueryParam("date")})
	}
	return nil
}

// readPump reads messages from the connection until it fails, then
// unregisters the client.
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.Unregister(client)
		client.conn.Close()
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.send(Event{Type: TypeError, Error: "malformed message"})
			continue
		}
		h.ProcessMessage(client, msg)
	}
}

// writePump writes queued events to the connection until Send is closed.
func (h *Hub) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = client.conn.WriteMessage(gorillawebsocket.CloseMessage,
		gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseNormalClosure, ""))
}
