package retreat

import "github.com/gofiber/fiber/v2"

const (
	localParticipant = "participant"
	localRetreat     = "retreat"
)

// BindSession attaches the authenticated participant and retreat to the
// request. The auth middleware calls it once per request after the device
// token resolves.
func BindSession(c *fiber.Ctx, p Participant, r Retreat) {
	c.Locals(localParticipant, p)
	c.Locals(localRetreat, r)
}

// ParticipantFrom returns the participant bound by the auth middleware.
func ParticipantFrom(c *fiber.Ctx) Participant {
	p, _ := c.Locals(localParticipant).(Participant)
	return p
}

// RetreatFrom returns the retreat bound by the auth middleware.
func RetreatFrom(c *fiber.Ctx) Retreat {
	r, _ := c.Locals(localRetreat).(Retreat)
	return r
}

// Bind is a middleware stub for handler tests: it binds a fixed session the
// way the real auth middleware would.
func Bind(p Participant, r Retreat) fiber.Handler {
	return func(c *fiber.Ctx) error {
		BindSession(c, p, r)
		return c.Next()
	}
}
