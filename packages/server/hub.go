package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/session"
	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// ErrHubStopped is returned to callers that reach the hub after it exited
var ErrHubStopped = errors.New("hub stopped")

// Message is an editing request sent by a websocket client
type Message struct {
	Action string `json:"action"`
	Cell   string `json:"cell,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Response is what the hub sends back: the full document after every
// change, or an error for the client whose request failed
type Response struct {
	Type       string                `json:"type"`
	Document   *spreadsheet.Document `json:"document,omitempty"`
	Selected   string                `json:"selected,omitempty"`
	FormulaBar string                `json:"formulaBar"`
	Rows       int                   `json:"rows,omitempty"`
	Columns    int                   `json:"columns,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type request struct {
	client *Client
	msg    Message
}

type job struct {
	fn        func(*session.Session) error
	broadcast bool
	done      chan error
}

// Hub owns the session. every edit, from any client or HTTP handler, runs
// on the hub goroutine in arrival order
type Hub struct {
	session *session.Session
	logger  *zap.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	requests   chan request
	jobs       chan job

	stopped chan struct{}
}

// NewHub creates a hub around the session. Run must be called for it to
// do anything
func NewHub(sess *session.Session, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		session:    sess,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		requests:   make(chan request),
		jobs:       make(chan job),
		stopped:    make(chan struct{}),
	}
}

// Run processes requests until ctx is done. connected clients are
// disconnected on the way out
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("client connected", zap.String("client", client.id.String()), zap.Int("clients", len(h.clients)))
			h.send(client, h.snapshot())
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("client disconnected", zap.String("client", client.id.String()), zap.Int("clients", len(h.clients)))
			}
		case req := <-h.requests:
			h.handle(req)
		case j := <-h.jobs:
			err := j.fn(h.session)
			if err == nil && j.broadcast {
				h.broadcast(h.snapshot())
			}
			j.done <- err
		}
	}
}

// Apply runs fn on the hub goroutine and broadcasts the new state to every
// client when fn succeeds
func (h *Hub) Apply(ctx context.Context, fn func(*session.Session) error) error {
	return h.do(ctx, job{fn: fn, broadcast: true, done: make(chan error, 1)})
}

// View runs fn on the hub goroutine without notifying clients
func (h *Hub) View(ctx context.Context, fn func(*session.Session) error) error {
	return h.do(ctx, job{fn: fn, done: make(chan error, 1)})
}

func (h *Hub) do(ctx context.Context, j job) error {
	select {
	case h.jobs <- j:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// the hub always answers a job it accepted
	return <-j.done
}

func (h *Hub) handle(req request) {
	broadcast, err := h.apply(req.msg)
	if err != nil {
		h.logger.Debug("request failed",
			zap.String("client", req.client.id.String()),
			zap.String("action", req.msg.Action),
			zap.Error(err))
		h.send(req.client, encodeResponse(Response{Type: "error", Error: err.Error(), FormulaBar: h.session.FormulaBar()}))
		return
	}

	if broadcast {
		h.broadcast(h.snapshot())
	} else {
		h.send(req.client, h.snapshot())
	}
}

// apply performs one client action. broadcast is false for actions that
// only concern the requesting client
func (h *Hub) apply(msg Message) (broadcast bool, err error) {
	s := h.session
	switch msg.Action {
	case "select":
		return true, s.Select(msg.Cell)
	case "edit":
		return true, s.EditCell(msg.Cell, msg.Value)
	case "bar":
		return true, s.EditFormulaBar(msg.Value)
	case "addRow":
		s.AddRow()
		return true, nil
	case "clear":
		s.Clear()
		return true, nil
	case "rename":
		s.Rename(msg.Value)
		return true, nil
	case "snapshot":
		return false, nil
	default:
		return false, spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

func (h *Hub) snapshot() []byte {
	selected, _ := h.session.Selected()
	return encodeResponse(Response{
		Type:       "snapshot",
		Document:   h.session.Snapshot(),
		Selected:   selected,
		FormulaBar: h.session.FormulaBar(),
		Rows:       h.session.Sheet().Rows(),
		Columns:    h.session.Sheet().Columns(),
	})
}

func (h *Hub) broadcast(message []byte) {
	for client := range h.clients {
		h.send(client, message)
	}
}

// send queues a message for one client. a client that cannot keep up is
// disconnected
func (h *Hub) send(client *Client, message []byte) {
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- message:
	default:
		h.logger.Warn("dropping slow client", zap.String("client", client.id.String()))
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

func encodeResponse(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// documents only hold strings and numbers
		panic(fmt.Sprintf("encode response: %v", err))
	}
	return data
}
