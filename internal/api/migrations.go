package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

// StartResponse is returned when a migration starts.
type StartResponse struct {
	MigrationID string `json:"migrationId"`
}

// CancelResponse is returned when a cancellation is accepted.
type CancelResponse struct {
	MigrationID string           `json:"migrationId"`
	Status      migration.Status `json:"status"`
}

// RepairResponse reports the outcome of a single-entity repair.
type RepairResponse struct {
	DomainType string            `json:"domainType"`
	Key        string            `json:"key"`
	Outcome    migration.Outcome `json:"outcome"`
}

// DeadLettersResponse lists the dead letters of a domain.
type DeadLettersResponse struct {
	DomainType  string                 `json:"domainType"`
	Count       int                    `json:"count"`
	DeadLetters []migration.DeadLetter `json:"deadLetters"`
}

// RedriveResponse reports how many dead letters were requeued.
type RedriveResponse struct {
	DomainType string `json:"domainType"`
	Redriven   int    `json:"redriven"`
}

// runner resolves the :domain path parameter.
func (s *Server) runner(c echo.Context) (migration.Runner, error) {
	domain := c.Param("domain")
	r, ok := s.runners[domain]
	if !ok {
		return nil, errors.Newf("unknown domain %q", domain).
			Component("api").
			Category(errors.CategoryNotFound).
			Build()
	}
	return r, nil
}

// startMigration starts a migration with the request body as filter.
func (s *Server) startMigration(c echo.Context) error {
	r, err := s.runner(c)
	if err != nil {
		return s.HandleError(c, err, "Unknown domain", http.StatusNotFound)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return s.HandleError(c, err, "Failed to read request body", http.StatusBadRequest)
	}

	id, err := r.StartRaw(c.Request().Context(), body)
	if err != nil {
		return s.HandleError(c, err, "Failed to start migration", 0)
	}

	s.log.Info("migration started via API",
		logger.String("domain", r.DomainType()),
		logger.String("migration_id", id))
	return c.JSON(http.StatusCreated, StartResponse{MigrationID: id})
}

// listHistory lists history rows filtered by the optional migrationId, domain,
// status and limit query parameters.
func (s *Server) listHistory(c echo.Context) error {
	q := migration.HistoryQuery{
		MigrationID: c.QueryParam("migrationId"),
		DomainType:  c.QueryParam("domain"),
		Status:      migration.Status(strings.ToUpper(c.QueryParam("status"))),
	}
	if q.Status != "" && !q.Status.Valid() {
		return s.HandleError(c, nil, "Unknown status "+string(q.Status), http.StatusBadRequest)
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return s.HandleError(c, err, "Invalid limit", http.StatusBadRequest)
		}
		q.Limit = limit
	}

	rows, err := s.history.List(c.Request().Context(), q)
	if err != nil {
		return s.HandleError(c, err, "Failed to list migration history", 0)
	}
	if rows == nil {
		rows = []migration.History{}
	}
	return c.JSON(http.StatusOK, rows)
}

// getHistory returns one history row.
func (s *Server) getHistory(c echo.Context) error {
	h, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.HandleError(c, err, "Failed to get migration", 0)
	}
	return c.JSON(http.StatusOK, h)
}

// cancelMigration requests cancellation of a running migration. The domain is
// taken from the history row.
func (s *Server) cancelMigration(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	h, err := s.history.Get(ctx, id)
	if err != nil {
		return s.HandleError(c, err, "Failed to get migration", 0)
	}
	r, ok := s.runners[h.DomainType]
	if !ok {
		return s.HandleError(c, nil, "Domain "+h.DomainType+" is not served by this instance", http.StatusNotFound)
	}
	if err := r.Cancel(ctx, id); err != nil {
		return s.HandleError(c, err, "Failed to cancel migration", 0)
	}

	s.log.Info("migration cancellation requested via API",
		logger.String("domain", h.DomainType),
		logger.String("migration_id", id))
	return c.JSON(http.StatusAccepted, CancelResponse{MigrationID: id, Status: migration.StatusCancelRequested})
}

// repairEntity runs the synchronisation algorithm for one key.
func (s *Server) repairEntity(c echo.Context) error {
	r, err := s.runner(c)
	if err != nil {
		return s.HandleError(c, err, "Unknown domain", http.StatusNotFound)
	}

	key := c.Param("key")
	outcome, err := r.RepairRaw(c.Request().Context(), key)
	if err != nil {
		return s.HandleError(c, err, "Failed to repair entity", 0)
	}
	return c.JSON(http.StatusOK, RepairResponse{DomainType: r.DomainType(), Key: key, Outcome: outcome})
}

func (s *Server) listDeadLetters(c echo.Context) error {
	r, err := s.runner(c)
	if err != nil {
		return s.HandleError(c, err, "Unknown domain", http.StatusNotFound)
	}

	letters, err := r.DeadLetters(c.Request().Context(), c.QueryParam("migrationId"))
	if err != nil {
		return s.HandleError(c, err, "Failed to list dead letters", 0)
	}
	if letters == nil {
		letters = []migration.DeadLetter{}
	}
	return c.JSON(http.StatusOK, DeadLettersResponse{
		DomainType:  r.DomainType(),
		Count:       len(letters),
		DeadLetters: letters,
	})
}

func (s *Server) redriveDeadLetters(c echo.Context) error {
	r, err := s.runner(c)
	if err != nil {
		return s.HandleError(c, err, "Unknown domain", http.StatusNotFound)
	}

	n, err := r.Redrive(c.Request().Context(), c.QueryParam("migrationId"))
	if err != nil {
		return s.HandleError(c, err, "Failed to redrive dead letters", 0)
	}
	return c.JSON(http.StatusOK, RedriveResponse{DomainType: r.DomainType(), Redriven: n})
}
