package admin

import (
	"errors"
	"strconv"
	"time"

	"backend-caravan/internal/identity"
	"backend-caravan/internal/phone"
	"backend-caravan/internal/validate"

	"github.com/gofiber/fiber/v2"
)

const KeyHeader = "X-Admin-Key"

// KeyMiddleware guards the admin surface with a shared key. An empty
// configured key disables the surface entirely.
func KeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" || c.Get(KeyHeader) != key {
			return fiber.NewError(fiber.StatusUnauthorized, "Admin key required")
		}
		return c.Next()
	}
}

type createRetreatRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Code        string `json:"code" validate:"omitempty,min=4,max=12"`
	Destination *struct {
		Name string  `json:"name" validate:"required,max=100"`
		Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
		Lng  float64 `json:"lng" validate:"gte=-180,lte=180"`
	} `json:"destination"`
	StartsAtMs int64 `json:"starts_at_ms" validate:"required,gt=0"`
	EndsAtMs   int64 `json:"ends_at_ms" validate:"required,gt=0"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=24"`
}

type aliasRequest struct {
	Alias string `json:"alias" validate:"required,min=2,max=12"`
	Code  string `json:"code" validate:"required,min=4,max=12"`
}

type mergeRequest struct {
	FromParticipantID int64 `json:"from_participant_id" validate:"required,gt=0"`
	ToParticipantID   int64 `json:"to_participant_id" validate:"required,gt=0"`
}

func RegisterRoutes(r fiber.Router, svc *Service, allowlist *identity.Service, adminKey string) {
	guard := KeyMiddleware(adminKey)

	r.Post("/retreats", guard, func(c *fiber.Ctx) error {
		var req createRetreatRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return validationFailed(c, errs)
		}
		if req.EndsAtMs <= req.StartsAtMs {
			return validationFailed(c, map[string]string{"ends_at_ms": "must be after starts_at_ms"})
		}

		in := CreateRetreatInput{
			Name:     req.Name,
			Code:     req.Code,
			StartsAt: time.UnixMilli(req.StartsAtMs).UTC(),
			EndsAt:   time.UnixMilli(req.EndsAtMs).UTC(),
		}
		if req.Destination != nil {
			in.DestinationName = &req.Destination.Name
			in.DestinationLat = &req.Destination.Lat
			in.DestinationLng = &req.Destination.Lng
		}

		ret, err := svc.CreateRetreat(c.Context(), in)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ret})
	})

	r.Post("/retreats/:id/allowlist", guard, func(c *fiber.Ctx) error {
		retreatID, err := retreatParam(c)
		if err != nil {
			return err
		}

		normalized, ok, err := normalizedPhone(c)
		if !ok {
			return err
		}

		promoted, err := allowlist.Allow(c.Context(), retreatID, normalized)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
			"allowed":               true,
			"promoted_participants": promoted,
		}})
	})

	r.Delete("/retreats/:id/allowlist", guard, func(c *fiber.Ctx) error {
		retreatID, err := retreatParam(c)
		if err != nil {
			return err
		}

		normalized, ok, err := normalizedPhone(c)
		if !ok {
			return err
		}

		removed, demoted, err := allowlist.Disallow(c.Context(), retreatID, normalized)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"data": fiber.Map{
			"removed":              removed,
			"demoted_participants": demoted,
		}})
	})

	r.Get("/retreats/:id/allowlist", guard, func(c *fiber.Ctx) error {
		retreatID, err := retreatParam(c)
		if err != nil {
			return err
		}

		entries, err := allowlist.List(c.Context(), retreatID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		out := make([]fiber.Map, 0, len(entries))
		for _, e := range entries {
			masked, _ := phone.Mask(e.PhoneE164)
			out = append(out, fiber.Map{
				"phone_display": masked,
				"created_at":    e.CreatedAt,
			})
		}
		return c.JSON(fiber.Map{"data": out})
	})

	r.Put("/aliases", guard, func(c *fiber.Ctx) error {
		var req aliasRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return validationFailed(c, errs)
		}

		if err := svc.UpsertAlias(c.Context(), req.Alias, req.Code); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"alias": req.Alias, "code": req.Code}})
	})

	r.Post("/retreats/:id/merge", guard, func(c *fiber.Ctx) error {
		retreatID, err := retreatParam(c)
		if err != nil {
			return err
		}

		var req mergeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return validationFailed(c, errs)
		}
		if req.FromParticipantID == req.ToParticipantID {
			return validationFailed(c, map[string]string{"to_participant_id": "must differ from from_participant_id"})
		}

		result, err := svc.MergeParticipants(c.Context(), retreatID, req.FromParticipantID, req.ToParticipantID)
		if errors.Is(err, ErrParticipantNotInRetreat) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"data": result})
	})
}

func retreatParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid retreat id")
	}
	return id, nil
}

// normalizedPhone parses and normalizes the phone payload. When it reports
// false the response has already been written.
func normalizedPhone(c *fiber.Ctx) (string, bool, error) {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return "", false, fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if errs := validate.Struct(req); errs != nil {
		return "", false, validationFailed(c, errs)
	}
	normalized, ok := phone.Normalize(req.PhoneNumber)
	if !ok {
		return "", false, validationFailed(c, map[string]string{"phone_number": "must be a valid phone number"})
	}
	return normalized, true, nil
}

func validationFailed(c *fiber.Ctx, errs map[string]string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":  "Validation failed",
		"errors": errs,
	})
}
