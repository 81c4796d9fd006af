package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/trackship/server/src/store"
)

// handleTrackShipment is the public tracking lookup. Reads go through
// the Redis cache when it is available; a cold or unreachable cache
// simply means a database round trip.
func (s *Server) handleTrackShipment(c fiber.Ctx) error {
	trackingNumber := c.Params("trackingNumber")

	if s.cache != nil {
		if raw, hit := s.cache.Get(c.Context(), trackingNumber); hit {
			return ok(c, json.RawMessage(raw))
		}
	}

	view, err := s.store.GetShipmentByTracking(c.Context(), trackingNumber)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Shipment not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("tracking_number", trackingNumber).Msg("tracking lookup failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch shipment details")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(view); err == nil {
			s.cache.Set(c.Context(), trackingNumber, raw)
		}
	}
	return ok(c, view)
}
