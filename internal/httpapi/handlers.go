package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/javiportal/asertiva-monitoring/internal/db"
	"github.com/javiportal/asertiva-monitoring/internal/globaltime"
	"github.com/javiportal/asertiva-monitoring/internal/ingest"
	submissionschema "github.com/javiportal/asertiva-monitoring/schema"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return success(c, map[string]any{
		"service": "asertiva-monitoring",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check ping failed")
		return storageUnavailable(c, "Database is unreachable")
	}
	return success(c, map[string]any{
		"service":  "asertiva-monitoring",
		"database": "ok",
		"time":     globaltime.UTC(),
	})
}

// handleIngestChange is the ingestion boundary consumed by fetchers and
// pollers. A duplicate is a success outcome, not an error: the caller
// treats it as already handled.
func (s *Server) handleIngestChange(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxIngestBodyBytes))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not be read"})
	}

	wire, err := submissionschema.ValidateChangeSubmission(json.RawMessage(body))
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	submission, err := wire.ToSubmission()
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	result, err := s.ingestor.IngestOne(c.Request().Context(), submission)
	if err != nil {
		if ingest.IsValidationError(err) {
			return failValidation(c, map[string]string{"payload": err.Error()})
		}
		s.logger.Error().Err(err).Str("source", submission.Source).Msg("ingest failed")
		return storageUnavailable(c, "Ingestion is temporarily unavailable")
	}

	if result.Duplicate {
		return success(c, result)
	}
	return successWithStatus(c, http.StatusCreated, result)
}

func (s *Server) handleListChanges(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	opts := db.ChangeListOptions{
		Status: strings.TrimSpace(strings.ToUpper(c.QueryParam("status"))),
		Source: strings.TrimSpace(strings.ToLower(c.QueryParam("source"))),
		From:   from,
		To:     to,
		Limit:  limit,
	}

	items, err := s.store.ListChanges(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list changes failed")
		return storageUnavailable(c, "Failed to load changes")
	}

	return success(c, map[string]any{
		"items": items,
		"filters": map[string]any{
			"status": opts.Status,
			"source": opts.Source,
			"from":   opts.From,
			"to":     opts.To,
			"limit":  opts.Limit,
		},
	})
}

func (s *Server) handleGetChange(c echo.Context) error {
	raw := strings.TrimSpace(c.Param("change_id"))
	changeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || changeID <= 0 {
		return failValidation(c, map[string]string{"change_id": "must be a positive integer"})
	}

	record, err := s.store.GetChange(c.Request().Context(), changeID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Change not found")
		}
		s.logger.Error().Err(err).Int64("change_id", changeID).Msg("get change failed")
		return storageUnavailable(c, "Failed to load change")
	}

	return success(c, record.Detail())
}

func (s *Server) handleChangeSummary(c echo.Context) error {
	dayStart, dayEnd := globaltime.DayBoundsUTC(globaltime.UTC())
	stats, err := s.store.QueryMonitorStats(c.Request().Context(), dayStart, dayEnd)
	if err != nil {
		s.logger.Error().Err(err).Msg("change summary failed")
		return storageUnavailable(c, "Failed to load change summary")
	}

	return success(c, map[string]any{
		"day":      stats.Day,
		"statuses": stats.Statuses,
		"total":    stats.Total,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	dayStart, dayEnd := globaltime.DayBoundsUTC(globaltime.UTC())
	stats, err := s.store.QueryMonitorStats(c.Request().Context(), dayStart, dayEnd)
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return storageUnavailable(c, "Failed to load stats")
	}
	return success(c, stats)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, errors.New("must be between " + strconv.Itoa(minValue) + " and " + strconv.Itoa(maxValue))
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, errors.New("invalid time format")
}
