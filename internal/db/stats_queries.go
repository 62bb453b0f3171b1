package db

import (
	"context"
	"fmt"
	"time"
)

// SourceStatsRow stores per-source ingestion counters.
type SourceStatsRow struct {
	Source     string     `json:"source"`
	Total      int64      `json:"total"`
	IngestedAt *time.Time `json:"latest_at,omitempty"`
	Today      int64      `json:"today"`
}

// StatusSummaryRow stores per-status (and importance) record counts.
type StatusSummaryRow struct {
	Status     string `json:"status"`
	Importance string `json:"importance,omitempty"`
	Count      int64  `json:"count"`
}

// MonitorStats is the read model returned by the stats endpoint.
type MonitorStats struct {
	Day      string             `json:"day"`
	Sources  []SourceStatsRow   `json:"sources"`
	Statuses []StatusSummaryRow `json:"statuses"`
	Total    int64              `json:"total"`
}

// QueryMonitorStats returns per-source and per-status counts for the
// given UTC day window.
func (p *Pool) QueryMonitorStats(ctx context.Context, dayStart, dayEnd time.Time) (*MonitorStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &MonitorStats{
		Day:      startUTC.Format("2006-01-02"),
		Sources:  make([]SourceStatsRow, 0, 4),
		Statuses: make([]StatusSummaryRow, 0, 8),
	}

	const sourcesQuery = `
SELECT
	c.source,
	COUNT(*)::BIGINT AS total,
	MAX(c.created_at) AS latest_at,
	COUNT(*) FILTER (WHERE c.created_at >= $1 AND c.created_at < $2)::BIGINT AS today
FROM monitor.changes c
GROUP BY c.source
ORDER BY 1
`

	rows, err := p.Query(ctx, sourcesQuery, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("query stats source counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row SourceStatsRow
		if err := rows.Scan(&row.Source, &row.Total, &row.IngestedAt, &row.Today); err != nil {
			return nil, fmt.Errorf("scan stats source row: %w", err)
		}
		stats.Sources = append(stats.Sources, row)
		stats.Total += row.Total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats source rows: %w", err)
	}

	const statusesQuery = `
SELECT
	c.status::text,
	COALESCE(c.importance, '') AS importance,
	COUNT(*)::BIGINT AS count
FROM monitor.changes c
GROUP BY 1, 2
ORDER BY 1, 2
`

	statusRows, err := p.Query(ctx, statusesQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats status counts: %w", err)
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var row StatusSummaryRow
		if err := statusRows.Scan(&row.Status, &row.Importance, &row.Count); err != nil {
			return nil, fmt.Errorf("scan stats status row: %w", err)
		}
		stats.Statuses = append(stats.Statuses, row)
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats status rows: %w", err)
	}

	return stats, nil
}
