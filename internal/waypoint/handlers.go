package waypoint

import (
	"strconv"
	"time"

	"backend-caravan/internal/retreat"
	"backend-caravan/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type createRequest struct {
	Name             string  `json:"name" validate:"required,min=2,max=100"`
	Description      *string `json:"description" validate:"omitempty,max=500"`
	Lat              float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng              float64 `json:"lng" validate:"gte=-180,lte=180"`
	Order            *int    `json:"order" validate:"omitempty,gte=0"`
	ETAMs            *int64  `json:"eta_ms" validate:"omitempty,gt=0"`
	SetAsDestination bool    `json:"set_as_destination"`
}

func RegisterRoutes(r fiber.Router, svc *Service, retreats *retreat.Service, authMiddleware fiber.Handler) {
	r.Get("/waypoints", authMiddleware, func(c *fiber.Ctx) error {
		ret := retreat.RetreatFrom(c)

		waypoints, err := svc.List(c.Context(), ret.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if waypoints == nil {
			waypoints = []Waypoint{}
		}
		return c.JSON(fiber.Map{
			"data": waypoints,
			"meta": fiber.Map{"destination": ret.Destination()},
		})
	})

	r.Post("/waypoints", authMiddleware, func(c *fiber.Ctx) error {
		participant := retreat.ParticipantFrom(c)
		if !participant.IsLeader {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Leader role required",
			})
		}

		var req createRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Validation failed",
				"errors": errs,
			})
		}

		ret := retreat.RetreatFrom(c)
		in := CreateInput{
			Name:        req.Name,
			Description: req.Description,
			Lat:         req.Lat,
			Lng:         req.Lng,
			Order:       req.Order,
		}
		if req.ETAMs != nil {
			eta := time.UnixMilli(*req.ETAMs).UTC()
			in.ETA = &eta
		}

		wp, err := svc.Create(c.Context(), ret.ID, in)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		destination := ret.Destination()
		if req.SetAsDestination {
			if err := retreats.UpdateDestination(c.Context(), ret.ID, req.Name, req.Lat, req.Lng); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			destination = &retreat.Destination{Name: req.Name, Lat: req.Lat, Lng: req.Lng}
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"data": wp,
			"meta": fiber.Map{"destination": destination},
		})
	})

	r.Delete("/waypoints/:id", authMiddleware, func(c *fiber.Ctx) error {
		participant := retreat.ParticipantFrom(c)
		if !participant.IsLeader {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Leader role required",
			})
		}

		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid waypoint id")
		}

		ret := retreat.RetreatFrom(c)
		deleted, err := svc.Delete(c.Context(), ret.ID, id)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !deleted {
			return fiber.NewError(fiber.StatusNotFound, "waypoint not found")
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
	})
}
