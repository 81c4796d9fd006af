package hub

import "github.com/trackship/server/src/types"

// Broadcasts are fire-and-forget: a client whose send buffer is full
// or whose channel has closed is skipped, and nothing is reported back
// to the caller. Push delivery is never a precondition for the
// triggering operation.

// BroadcastAll sends a message to every connected client.
func (h *Hub) BroadcastAll(msg types.Message) {
	h.broadcast(msg, func(*Client) bool { return true })
}

// BroadcastAdmins sends a message to clients authenticated as admin.
func (h *Hub) BroadcastAdmins(msg types.Message) {
	h.broadcast(msg, func(c *Client) bool { return c.IsAdmin() })
}

// BroadcastUser sends a message to every client authenticated as the
// given user. Multiple tabs sharing one identity all receive it.
func (h *Hub) BroadcastUser(userID string, msg types.Message) {
	h.broadcast(msg, func(c *Client) bool { return c.UserID() == userID })
}

func (h *Hub) broadcast(msg types.Message, match func(*Client) bool) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if !match(c) {
			continue
		}
		if c.trySend(msg) {
			delivered++
		} else {
			h.logger.Warn().Str("client_id", c.ID).Str("type", msg.Type).Msg("send buffer full or closed, dropping")
		}
	}
	h.logger.Debug().Str("type", msg.Type).Int("delivered", delivered).Msg("broadcast")
}
