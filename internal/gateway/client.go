package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iliyamo/realtime-auction/internal/admission"
	"github.com/iliyamo/realtime-auction/internal/fanout"
	"github.com/iliyamo/realtime-auction/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	bidderID string
	username string
	meta     model.BidMetadata

	outbox chan []byte
	rooms  map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, bidderID, username, remoteAddr, userAgent string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		bidderID: bidderID,
		username: username,
		meta:     model.BidMetadata{IPAddress: remoteAddr, UserAgent: userAgent},
		outbox:   make(chan []byte, 64),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) send(frame []byte) {
	select {
	case c.outbox <- frame:
	default:
		// Slow client: drop rather than block the broadcaster. A client that
		// cannot keep up with UPDATE_BID traffic will notice on reconnect.
	}
}

func (c *Client) sendServerTime() {
	if frame, err := encode(TypeServerTime, ServerTimePayload{ServerTime: time.Now().UTC().UnixMilli()}); err == nil {
		c.send(frame)
	}
}

func (c *Client) join(auctionID string)  { c.rooms[auctionID] = struct{}{}; c.hub.join(c, auctionID) }
func (c *Client) leave(auctionID string) { delete(c.rooms, auctionID); c.hub.leave(c, auctionID) }

// writePump drains outbox to the socket and keeps the connection alive with
// periodic pings, the standard gorilla/websocket pattern for a broadcaster
// that must never block on a slow reader.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()
	for {
		select {
		case frame, ok := <-c.outbox:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks reading inbound frames until the connection closes, then
// removes the client from every room it joined.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.removeFromAllRooms(c)
		close(c.outbox)
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) dispatch(ctx context.Context, env envelope) {
	switch env.Type {
	case TypeJoin:
		var p JoinPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.AuctionID != "" {
			c.join(p.AuctionID)
		}
	case TypeLeave:
		var p JoinPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.AuctionID != "" {
			c.leave(p.AuctionID)
		}
	case TypeBidPlaced:
		var p BidPlacedPayload
		if json.Unmarshal(env.Payload, &p) != nil || p.AuctionID == "" {
			return
		}
		c.placeBid(ctx, p)
	}
}

func (c *Client) placeBid(ctx context.Context, p BidPlacedPayload) {
	res, err := c.hub.admission.PlaceBid(ctx, admission.Request{
		AuctionID: p.AuctionID,
		BidderID:  c.bidderID,
		Username:  c.username,
		Amount:    p.Amount,
		Meta:      c.meta,
	})
	if err != nil {
		c.sendRejection(p.AuctionID, err)
		return
	}
	if frame, encErr := encode(TypeBidAccepted, BidAcceptedPayload{
		AuctionID: p.AuctionID,
		Bid: fanout.BidView{
			Amount:         res.CurrentBid,
			BidderID:       c.bidderID,
			BidderUsername: c.username,
			Timestamp:      res.ServerTime,
			TotalBids:      res.TotalBids,
		},
	}); encErr == nil {
		c.send(frame)
	}
}

func (c *Client) sendRejection(auctionID string, err error) {
	payload := BidRejectedPayload{AuctionID: auctionID, Code: admission.CodeInvalidInput, Message: err.Error()}
	var admErr *admission.Error
	if errors.As(err, &admErr) {
		payload.Code = admErr.Code
		payload.Message = admErr.Message
		if admErr.Code == admission.CodeBidTooLow {
			isFirstBid := admErr.IsFirstBid
			payload.Details = &BidRejectedDetails{
				CurrentBid: admErr.CurrentBid,
				MinimumBid: admErr.MinimumBid,
				YourBid:    admErr.YourBid,
				IsFirstBid: &isFirstBid,
			}
		}
	}
	if frame, encErr := encode(TypeBidRejected, payload); encErr == nil {
		c.send(frame)
	}
}
