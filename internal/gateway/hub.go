// Package gateway implements the Real-time Gateway (C7): the WebSocket
// edge that turns admission-service results and fan-out events into the
// exact client-facing frames spec.md §6 defines. One Hub runs per process
// instance; every instance subscribes to the same fan-out bus, so a client
// connected to any instance sees every bid/extension/end event for the
// rooms it joined, regardless of which instance committed the write.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/realtime-auction/internal/admission"
	"github.com/iliyamo/realtime-auction/internal/fanout"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every live connection, grouped into rooms keyed by auctionId,
// and the admission/fan-out wiring needed to serve them.
type Hub struct {
	jwtSecret string
	admission *admission.Service
	bus       *fanout.Bus
	log       *logrus.Entry

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// New constructs a Hub. Call Run once to start the fan-out consumer loop.
func New(jwtSecret string, svc *admission.Service, bus *fanout.Bus, log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		jwtSecret: jwtSecret,
		admission: svc,
		bus:       bus,
		log:       log.WithField("component", "gateway"),
		rooms:     make(map[string]map[*Client]struct{}),
	}
}

// Run subscribes to the fan-out bus and broadcasts every event to the
// clients currently in the matching room. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.Subscribe(ctx)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.BidPlaced:
			if !ok {
				return
			}
			h.broadcastBidPlaced(ev)
		case ev, ok := <-sub.AuctionEnded:
			if !ok {
				return
			}
			h.broadcastAuctionEnded(ev)
		}
	}
}

func (h *Hub) broadcastBidPlaced(ev fanout.BidPlacedEvent) {
	if frame, err := encode(TypeUpdateBid, UpdateBidPayload{AuctionID: ev.AuctionID, Bid: ev.Bid}); err == nil {
		h.broadcast(ev.AuctionID, frame)
	}
	if ev.Extended && ev.ExtensionData != nil {
		if frame, err := encode(TypeAuctionExtended, AuctionExtendedPayload{
			AuctionID:  ev.AuctionID,
			OldEndTime: ev.ExtensionData.OldEndTime,
			NewEndTime: ev.ExtensionData.NewEndTime,
			ExtendedBy: ev.ExtensionData.ExtendedBy,
		}); err == nil {
			h.broadcast(ev.AuctionID, frame)
		}
	}
}

func (h *Hub) broadcastAuctionEnded(ev fanout.AuctionEndedEvent) {
	frame, err := encode(TypeAuctionEnded, AuctionEndedPayload{
		AuctionID: ev.AuctionID, WinnerID: ev.WinnerID, WinningBid: ev.WinningBid,
		TotalBids: ev.TotalBids, EndTime: ev.EndTime,
	})
	if err != nil {
		return
	}
	h.broadcast(ev.AuctionID, frame)
	h.closeRoom(ev.AuctionID)
}

func (h *Hub) broadcast(auctionID string, frame []byte) {
	h.mu.RLock()
	room := h.rooms[auctionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.send(frame)
	}
}

// closeRoom drops the room's bookkeeping once an auction has ended; clients
// stay connected (they may still be watching other auctions) but nothing
// further will ever broadcast to this auctionId.
func (h *Hub) closeRoom(auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[auctionID] {
		delete(c.rooms, auctionID)
	}
	delete(h.rooms, auctionID)
}

func (h *Hub) join(c *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[*Client]struct{})
	}
	h.rooms[auctionID][c] = struct{}{}
}

func (h *Hub) leave(c *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[auctionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

func (h *Hub) removeFromAllRooms(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for auctionID, room := range h.rooms {
		if _, ok := room[c]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, auctionID)
			}
		}
	}
}

// Handle is the Echo handler registered on the WebSocket upgrade route. It
// authenticates, upgrades, and hands the connection off to a Client.
func (h *Hub) Handle(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		if auth := c.Request().Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}
	}
	bidderID, username, err := authenticate(h.jwtSecret, token)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := newClient(h, conn, bidderID, username, c.Request().RemoteAddr, c.Request().UserAgent())
	client.sendServerTime()
	go client.writePump()
	client.readPump(c.Request().Context())
	return nil
}
