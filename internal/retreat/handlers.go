package retreat

import (
	"errors"
	"strings"

	"backend-caravan/internal/avatar"
	"backend-caravan/internal/db"
	"backend-caravan/internal/identity"
	"backend-caravan/internal/phone"
	"backend-caravan/internal/validate"

	"github.com/gofiber/fiber/v2"
)

type joinRequest struct {
	Code               string  `json:"code" validate:"required,min=4,max=12"`
	AuthMode           string  `json:"auth_mode" validate:"omitempty,oneof=join signin"`
	Name               string  `json:"name" validate:"omitempty,min=2,max=50"`
	PhoneNumber        string  `json:"phone_number" validate:"required,max=24"`
	Gender             *string `json:"gender" validate:"omitempty,oneof=male female"`
	VehicleColor       *string `json:"vehicle_color" validate:"omitempty,max=30"`
	VehicleDescription *string `json:"vehicle_description" validate:"omitempty,max=50"`
	ExpoPushToken      *string `json:"expo_push_token" validate:"omitempty,max=255"`
}

type sharingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type deleteAccountRequest struct {
	ConfirmDelete bool `json:"confirm_delete"`
}

type profilePhotoRequest struct {
	AvatarBase64 string `json:"avatar_base64" validate:"required"`
}

func RegisterRoutes(r fiber.Router, svc *Service, q db.Querier, avatars *avatar.Store, authMiddleware fiber.Handler) {
	r.Post("/join", func(c *fiber.Ctx) error {
		var req joinRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}

		mode := strings.ToLower(strings.TrimSpace(req.AuthMode))
		if mode == "" {
			mode = ModeJoin
		}

		fieldErrs := validate.Struct(req)
		if fieldErrs == nil {
			fieldErrs = map[string]string{}
		}
		if mode == ModeJoin && len(strings.TrimSpace(req.Name)) < 2 {
			fieldErrs["name"] = "is required"
		}
		normalized, ok := phone.Normalize(req.PhoneNumber)
		if !ok {
			fieldErrs["phone_number"] = "must be a valid phone number"
		}
		if len(fieldErrs) > 0 {
			return validationFailed(c, fieldErrs)
		}

		code, err := svc.ResolveCode(c.Context(), req.Code)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		ret, err := svc.FindJoinable(c.Context(), code)
		if errors.Is(err, ErrNotJoinable) {
			// Deliberately 422 with a generic message: a 404 would leak
			// which codes exist.
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Invalid retreat code or retreat is not active",
			})
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		result, err := svc.Join(c.Context(), ret, JoinInput{
			Mode:               mode,
			Name:               strings.TrimSpace(req.Name),
			PhoneE164:          normalized,
			Gender:             req.Gender,
			VehicleColor:       req.VehicleColor,
			VehicleDescription: req.VehicleDescription,
			ExpoPushToken:      req.ExpoPushToken,
		}, identity.NewResolver(q))
		if errors.Is(err, ErrNoExistingParticipant) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "No existing participant found for that phone number. Use Join first.",
			})
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"participant_id": result.ParticipantID,
			"device_token":   result.DeviceToken,
			"retreat":        retreatPayload(ret),
		}})
	})

	r.Post("/leave", authMiddleware, func(c *fiber.Ctx) error {
		participant := ParticipantFrom(c)
		if err := svc.Leave(c.Context(), participant.ID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"left": true}})
	})

	r.Get("/status", authMiddleware, func(c *fiber.Ctx) error {
		participant := ParticipantFrom(c)
		ret := RetreatFrom(c)

		count, err := svc.LiveParticipantCount(c.Context(), ret.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		retreatOut := retreatPayload(ret)
		retreatOut["participant_count"] = count

		return c.JSON(fiber.Map{"data": fiber.Map{
			"participant": participantPayload(participant, avatars),
			"retreat":     retreatOut,
		}})
	})

	r.Delete("/account", authMiddleware, func(c *fiber.Ctx) error {
		var req deleteAccountRequest
		if err := c.BodyParser(&req); err != nil || !req.ConfirmDelete {
			return validationFailed(c, map[string]string{"confirm_delete": "must be true"})
		}

		participant := ParticipantFrom(c)
		avatarPath, err := svc.DeleteAccount(c.Context(), participant.ID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if avatarPath != nil {
			_ = avatars.Remove(*avatarPath)
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"deleted":        true,
			"participant_id": participant.ID,
			"retreat_id":     participant.RetreatID,
		}})
	})

	r.Patch("/location-sharing", authMiddleware, func(c *fiber.Ctx) error {
		var req sharingRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return validationFailed(c, errs)
		}

		participant := ParticipantFrom(c)
		if err := svc.SetLocationSharing(c.Context(), participant.ID, *req.Enabled); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"location_sharing_enabled": *req.Enabled,
		}})
	})

	r.Post("/profile-photo", authMiddleware, func(c *fiber.Ctx) error {
		var req profilePhotoRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if errs := validate.Struct(req); errs != nil {
			return validationFailed(c, errs)
		}

		participant := ParticipantFrom(c)
		path, err := avatars.Save(participant.RetreatID, participant.ID, req.AvatarBase64)
		switch {
		case errors.Is(err, avatar.ErrInvalidFormat), errors.Is(err, avatar.ErrInvalidEncoding), errors.Is(err, avatar.ErrTooLarge):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		if err := svc.SetAvatarPath(c.Context(), participant.ID, &path); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if participant.AvatarPath != nil {
			_ = avatars.Remove(*participant.AvatarPath)
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"avatar_url": avatars.URL(&path),
		}})
	})

	r.Delete("/profile-photo", authMiddleware, func(c *fiber.Ctx) error {
		participant := ParticipantFrom(c)

		if participant.AvatarPath != nil {
			_ = avatars.Remove(*participant.AvatarPath)
			if err := svc.SetAvatarPath(c.Context(), participant.ID, nil); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
		}

		return c.JSON(fiber.Map{"data": fiber.Map{
			"avatar_url": nil,
		}})
	})
}

func retreatPayload(r Retreat) fiber.Map {
	var destination any
	if d := r.Destination(); d != nil {
		destination = d
	}
	return fiber.Map{
		"id":          r.ID,
		"name":        r.Name,
		"destination": destination,
		"starts_at":   r.StartsAt,
		"ends_at":     r.EndsAt,
	}
}

func participantPayload(p Participant, avatars *avatar.Store) fiber.Map {
	var phoneDisplay any
	if masked, ok := phone.Mask(p.PhoneE164); ok {
		phoneDisplay = masked
	}
	return fiber.Map{
		"id":                       p.ID,
		"name":                     p.Name,
		"phone_display":            phoneDisplay,
		"is_leader":                p.IsLeader,
		"location_sharing_enabled": p.LocationSharingEnabled,
		"avatar_url":               avatars.URL(p.AvatarPath),
	}
}

func validationFailed(c *fiber.Ctx, errs map[string]string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":  "Validation failed",
		"errors": errs,
	})
}
