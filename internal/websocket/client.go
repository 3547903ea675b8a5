package websocket

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"blertbank/internal/models"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 16
	maxInboundSize = 512
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	writeWait      = 10 * time.Second
)

// Client is one websocket subscribed to a single account's balance.
type Client struct {
	accountID int64
	conn      *websocket.Conn
	send      chan []byte
	// lastTxn is the newest transaction delivered to this client.
	lastTxn atomic.Int64
}

func newClient(accountID int64, conn *websocket.Conn) *Client {
	return &Client{accountID: accountID, conn: conn, send: make(chan []byte, sendBuffer)}
}

// offer queues an update unless the client already saw the same or a later
// transaction on the account. Postings on one account commit in txn id order
// but can reach the hub out of order, and a stale balance must never
// overwrite a newer one on the subscriber's side.
func (c *Client) offer(update BalanceUpdate, payload []byte) bool {
	for {
		last := c.lastTxn.Load()
		if update.TransactionID <= last {
			return false
		}
		if c.lastTxn.CompareAndSwap(last, update.TransactionID) {
			break
		}
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request, sends the account's current balance as a
// snapshot and then streams balance updates until the peer goes away or the
// hub is closed. On a failed upgrade the upgrader has already replied.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, account models.Account) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := newClient(account.ID, conn)
	snapshot, _ := json.Marshal(snapshotOf(account))
	client.send <- snapshot
	if !hub.Register(account.ID, client) {
		close(client.send)
	}
	go client.writePump(hub)
	client.readPump(hub)
}

func snapshotOf(account models.Account) BalanceUpdate {
	return BalanceUpdate{
		Type:         UpdateSnapshot,
		AccountID:    account.ID,
		BalanceAfter: account.Balance,
		CreatedAt:    account.UpdatedAt,
	}
}

// readPump only services control frames; subscribers have nothing to say.
func (c *Client) readPump(hub *Hub) {
	defer c.detach(hub)
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains send. A closed send channel means the hub dropped the
// subscription, so the peer gets a normal close frame.
func (c *Client) writePump(hub *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.detach(hub)
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				closing := websocket.FormatCloseMessage(websocket.CloseGoingAway, "ledger shutting down")
				_ = c.conn.WriteMessage(websocket.CloseMessage, closing)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) detach(hub *Hub) {
	hub.Unregister(c.accountID, c)
	_ = c.conn.Close()
}
