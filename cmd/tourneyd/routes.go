package main

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/heroiclabs/nakama-common/runtime"

	"tourneyforge/tourney"
)

const (
	headerUserID       = "X-User-ID"
	headerServiceToken = "X-Service-Token"
)

type server struct {
	engine     *tourney.Engine
	logger     runtime.Logger
	adminToken string
}

func newApp(engine *tourney.Engine, logger runtime.Logger, adminToken string) *fiber.App {
	s := &server{engine: engine, logger: logger, adminToken: adminToken}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", s.health)
	app.Get("/tournaments", s.listTournaments)
	app.Get("/tournaments/:name/standings", s.standings)

	user := app.Group("/me", s.requireUser)
	user.Get("/tournaments/:name/progress", s.progress)
	user.Get("/rewards", s.listRewards)
	user.Post("/rewards/:tournament/claim", s.claimReward)

	admin := app.Group("/admin", s.requireService)
	admin.Post("/tournaments", s.createTournament)
	admin.Delete("/tournaments/:name", s.removeTournament)
	admin.Post("/tournaments/:name/finish", s.finishTournament)
	admin.Post("/events", s.reportEvent)
	return app
}

// requireUser takes the player identity set by the gateway in front of the service.
func (s *server) requireUser(c *fiber.Ctx) error {
	userID := c.Get(headerUserID)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing " + headerUserID})
	}
	c.Locals("user_id", userID)
	return c.Next()
}

// requireService rejects every admin call when no token is configured.
func (s *server) requireService(c *fiber.Ctx) error {
	token := c.Get(headerServiceToken)
	if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": tourney.ErrPermissionDenied.Error()})
	}
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// fail maps engine errors to HTTP statuses by their runtime error code.
func (s *server) fail(c *fiber.Ctx, err error) error {
	var runtimeErr *runtime.Error
	if !errors.As(err, &runtimeErr) {
		s.logger.Error("Unexpected error on %s: %v", c.Path(), err)
		runtimeErr = tourney.ErrInternal
	}
	status := fiber.StatusInternalServerError
	switch runtimeErr.Code {
	case tourney.INVALID_ARGUMENT_ERROR_CODE:
		status = fiber.StatusBadRequest
	case tourney.NOT_FOUND_ERROR_CODE:
		status = fiber.StatusNotFound
	case tourney.PERMISSION_DENIED_ERROR_CODE:
		status = fiber.StatusForbidden
	case tourney.FAILED_PRECONDITION_ERROR_CODE:
		status = fiber.StatusConflict
	case tourney.UNAVAILABLE_ERROR_CODE:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": runtimeErr.Message})
}

func (s *server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"scheduler": s.engine.Scheduler.State().String()})
}

func (s *server) listTournaments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tournaments": s.engine.Catalog.List()})
}

func (s *server) standings(c *fiber.Ctx) error {
	tournament, err := s.engine.Catalog.Get(c.Params("name"))
	if err != nil {
		return s.fail(c, err)
	}
	limit := c.QueryInt("limit", tourney.DefaultRewardedPositions+1)
	standings, err := s.engine.Standings.Top(c.UserContext(), tournament.Key(), tournament.TargetMode, limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"tournament": tournament.Key(), "standings": standings})
}

func (s *server) progress(c *fiber.Ctx) error {
	key := tourney.NormalizeName(c.Params("name"))
	return c.JSON(fiber.Map{
		"tournament": key,
		"progress":   s.engine.Progress.GetProgress(userID(c), key),
	})
}

func (s *server) listRewards(c *fiber.Ctx) error {
	rewards, err := s.engine.Claims.Pending(c.UserContext(), userID(c), c.QueryBool("province"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"rewards": rewards})
}

func (s *server) claimReward(c *fiber.Ctx) error {
	result, err := s.engine.Claims.Claim(c.UserContext(), userID(c), c.Params("tournament"), c.QueryBool("province"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

func (s *server) createTournament(c *fiber.Ctx) error {
	request := &tourney.CreateRequest{}
	if err := c.BodyParser(request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	tournament, err := s.engine.Create(c.UserContext(), request)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tournament)
}

func (s *server) removeTournament(c *fiber.Ctx) error {
	removed, err := s.engine.Remove(c.UserContext(), c.Params("name"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"removed": removed})
}

func (s *server) finishTournament(c *fiber.Ctx) error {
	finalized, err := s.engine.Finish(c.UserContext(), c.Params("name"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"finalized": finalized})
}

func (s *server) reportEvent(c *fiber.Ctx) error {
	request := &tourney.EventRequest{}
	if err := c.BodyParser(request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if request.BlockPlaced {
		s.engine.Events.BlockPlaced(request.Location)
		return c.JSON(fiber.Map{"updated": []string{}})
	}
	updated, err := s.engine.Events.Handle(c.UserContext(), request.Event)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}
