package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"blertbank/internal/services"
)

const (
	UpdateSnapshot = "snapshot"
	UpdatePosted   = "posted"
)

// BalanceUpdate is pushed to subscribers of an account after every posted
// transaction that touches it. A subscriber's first message is a snapshot
// of the balance at connect time, with no transaction id.
type BalanceUpdate struct {
	Type          string    `json:"type"`
	AccountID     int64     `json:"accountId"`
	TransactionID int64     `json:"transactionId"`
	Delta         int64     `json:"delta"`
	BalanceAfter  int64     `json:"balanceAfter"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Hub struct {
	mu      sync.RWMutex
	closed  bool
	clients map[int64]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
	}
}

// Register subscribes client to accountID. It reports false once the hub
// has been closed.
func (h *Hub) Register(accountID int64, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[accountID] == nil {
		h.clients[accountID] = make(map[*Client]struct{})
	}
	h.clients[accountID][client] = struct{}{}
	return true
}

func (h *Hub) Unregister(accountID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[accountID] == nil {
		return
	}
	delete(h.clients[accountID], client)
	if len(h.clients[accountID]) == 0 {
		delete(h.clients, accountID)
	}
}

func (h *Hub) Subscribers(accountID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// BroadcastBalance sends update to every subscriber of its account. Slow
// subscribers miss updates rather than block the sender.
func (h *Hub) BroadcastBalance(update BalanceUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[update.AccountID] {
		client.offer(update, payload)
	}
}

// Close drops every subscription. Each client's send channel is closed, so
// its write pump says goodbye to the peer and exits. Later registrations are
// refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for accountID, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, accountID)
	}
}

// Publish fans a posted transaction out to the subscribers of each account
// it touched. Other payloads are ignored.
func (h *Hub) Publish(_ context.Context, _ string, payload any) error {
	var event services.TransactionPostedEvent
	switch p := payload.(type) {
	case services.TransactionPostedEvent:
		event = p
	case *services.TransactionPostedEvent:
		event = *p
	default:
		return nil
	}
	for _, entry := range event.Entries {
		h.BroadcastBalance(BalanceUpdate{
			Type:          UpdatePosted,
			AccountID:     entry.AccountID,
			TransactionID: event.TransactionID,
			Delta:         entry.Delta,
			BalanceAfter:  entry.BalanceAfter,
			Reason:        event.Reason,
			CreatedAt:     event.CreatedAt,
		})
	}
	return nil
}
