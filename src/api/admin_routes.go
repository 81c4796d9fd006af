package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/trackship/server/src/store"
	"github.com/trackship/server/src/types"
)

func (s *Server) handleListShipments(c fiber.Ctx) error {
	shipments, err := s.store.ListShipments(c.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("shipment list failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch shipments")
	}
	return ok(c, shipments)
}

func (s *Server) handleGetShipment(c fiber.Ctx) error {
	detail, err := s.store.GetShipmentByID(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Shipment not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("shipment fetch failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch shipment details")
	}
	return ok(c, detail)
}

func (s *Server) handleCreateShipment(c fiber.Ctx) error {
	var in store.ShipmentInput
	if err := c.Bind().Body(&in); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if in.SenderName == "" || in.RecipientName == "" {
		return fail(c, fiber.StatusBadRequest, "Sender and recipient names are required")
	}

	trackingNumber := newTrackingNumber()
	id, err := s.store.CreateShipment(c.Context(), trackingNumber, in)
	if err != nil {
		s.logger.Error().Err(err).Msg("shipment creation failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to create shipment")
	}

	return created(c, fiber.Map{"id": id, "trackingNumber": trackingNumber})
}

func (s *Server) handleUpdateShipment(c fiber.Ctx) error {
	var in store.ShipmentInput
	if err := c.Bind().Body(&in); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	id := c.Params("id")
	if err := s.store.UpdateShipment(c.Context(), id, in); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Shipment not found")
		}
		s.logger.Error().Err(err).Msg("shipment update failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to update shipment")
	}

	detail, err := s.store.GetShipmentByID(c.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Msg("shipment readback failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to update shipment")
	}
	if s.cache != nil {
		s.cache.Invalidate(c.Context(), detail.TrackingNumber)
	}
	return ok(c, detail)
}

func (s *Server) handleDeleteShipment(c fiber.Ctx) error {
	err := s.store.DeleteShipment(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Shipment not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("shipment deletion failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to delete shipment")
	}
	return c.JSON(fiber.Map{"success": true, "message": "Shipment deleted successfully"})
}

type statusUpdateRequest struct {
	Status      string `json:"status" validate:"required"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// handleUpdateShipmentStatus commits the status change plus its
// history entry, then pushes a shipment_update to every connected
// client. The push is fire-and-forget; its outcome never affects the
// HTTP response.
func (s *Server) handleUpdateShipmentStatus(c fiber.Ctx) error {
	var req statusUpdateRequest
	if err := c.Bind().Body(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Status is required")
	}

	view, err := s.store.UpdateShipmentStatus(c.Context(), c.Params("id"), req.Status, req.Location, req.Description)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Shipment not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("status update failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to update shipment status")
	}

	if s.cache != nil {
		s.cache.Invalidate(c.Context(), view.TrackingNumber)
	}

	if msg, err := types.NewShipmentUpdate(view.TrackingNumber, view); err == nil {
		s.hub.BroadcastAll(msg)
	} else {
		s.logger.Error().Err(err).Msg("shipment update payload marshalling failed")
	}

	return ok(c, view)
}

func (s *Server) handleListCountries(c fiber.Ctx) error {
	countries, err := s.store.ListCountries(c.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("country list failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch countries")
	}
	return ok(c, countries)
}

func (s *Server) handleListStates(c fiber.Ctx) error {
	states, err := s.store.ListStates(c.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("state list failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch states")
	}
	return ok(c, states)
}

func (s *Server) handleListStatesByCountry(c fiber.Ctx) error {
	countryID, err := strconv.Atoi(c.Params("countryId"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid country id")
	}

	states, err := s.store.ListStatesByCountry(c.Context(), countryID)
	if err != nil {
		s.logger.Error().Err(err).Int("country_id", countryID).Msg("state list failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch states")
	}
	return ok(c, states)
}
