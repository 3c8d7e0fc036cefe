package message

import (
	"errors"
	"strconv"

	"backend-caravan/internal/retreat"
	"backend-caravan/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type sendRequest struct {
	Content string   `json:"content" validate:"required,max=1000"`
	Type    string   `json:"type" validate:"omitempty,oneof=chat alert status"`
	Lat     *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/messages", authMiddleware, func(c *fiber.Ctx) error {
		var req sendRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Validation failed",
				"errors": errs,
			})
		}

		participant := retreat.ParticipantFrom(c)
		msg, err := svc.Send(c.Context(), participant, req.Type, req.Content, req.Lat, req.Lng)
		if errors.Is(err, ErrLeaderRequired) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Only leaders can send alerts",
			})
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": msg})
	})

	r.Get("/messages", authMiddleware, func(c *fiber.Ctx) error {
		ret := retreat.RetreatFrom(c)
		sinceID, _ := strconv.ParseInt(c.Query("since_id", "0"), 10, 64)
		limit, _ := strconv.Atoi(c.Query("limit", "0"))

		msgs, err := svc.List(c.Context(), ret.ID, sinceID, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if msgs == nil {
			msgs = []Message{}
		}

		latestID := sinceID
		if len(msgs) > 0 {
			latestID = msgs[len(msgs)-1].ID
		}
		return c.JSON(fiber.Map{
			"data": msgs,
			"meta": fiber.Map{
				"latest_id": latestID,
				"count":     len(msgs),
			},
		})
	})
}
