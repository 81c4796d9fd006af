package hub

import (
	"errors"

	"github.com/trackship/server/src/types"
)

// handleMessage routes one inbound client message by its type
// discriminator. Unknown types are ignored, never fatal.
func (h *Hub) handleMessage(c *Client, msg types.Message) {
	switch msg.Type {
	case types.TypeAuth:
		h.authenticate(c, msg.Token)
	case types.TypePing:
		c.markAlive()
		c.trySend(types.NewPong())
	case types.TypePong:
		c.markAlive()
	case types.TypeSubscribe:
		if msg.TrackingNumber != "" {
			c.addWatch(msg.TrackingNumber)
		}
	case types.TypeUnsubscribe:
		if msg.TrackingNumber != "" {
			c.removeWatch(msg.TrackingNumber)
		}
	default:
		h.logger.Debug().Str("client_id", c.ID).Str("type", msg.Type).Msg("unhandled message type")
	}
}

// authenticate verifies the token and attaches the resulting identity
// to the connection. Both outcomes are acknowledged on the same
// channel; failure leaves the connection anonymous but open.
func (h *Hub) authenticate(c *Client, token string) {
	identity, err := h.verifyToken(token)
	if err != nil {
		h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("channel auth failed")
		c.trySend(types.NewAuthAck(false, "Invalid token"))
		return
	}

	c.setIdentity(identity)
	c.trySend(types.NewAuthAck(true, "Authentication successful"))
	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", identity.UserID).
		Bool("admin", identity.IsAdmin()).
		Msg("client authenticated")
}

func (h *Hub) verifyToken(token string) (types.Identity, error) {
	if token == "" {
		return types.Identity{}, errors.New("empty token")
	}
	if h.verifier == nil {
		return types.Identity{}, errors.New("no token verifier configured")
	}
	return h.verifier.Verify(token)
}
