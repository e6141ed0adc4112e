package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"careAlert/internal/domain"
	"careAlert/pkg/e"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id, location, occurred_at, reporter, detail, state, is_fall, confirmed_by,
	intervention_occurred, received_at, attended_at, attended_by, injury_level, created_at`

type Incidents struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewIncidents(pool *pgxpool.Pool, logger *slog.Logger) *Incidents {
	return &Incidents{pool: pool, logger: logger}
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc   domain.Incident
		level *int32
	)
	err := row.Scan(
		&inc.ID,
		&inc.Location,
		&inc.Time,
		&inc.Reporter,
		&inc.Detail,
		&inc.State,
		&inc.IsFall,
		&inc.ConfirmedBy,
		&inc.Intervention.Occurred,
		&inc.Intervention.ReceivedAt,
		&inc.Intervention.AttendedAt,
		&inc.Intervention.AttendedBy,
		&level,
		&inc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if level != nil {
		l := domain.InjuryLevel(*level)
		inc.Intervention.InjuryLevel = &l
	}
	return &inc, nil
}

func (p *Incidents) Create(ctx context.Context, incident *domain.Incident) error {
	const op = "postgres.Incident.Create"

	const query = `
		INSERT INTO incidents (
			id, location, occurred_at, reporter, detail, state, is_fall, confirmed_by,
			intervention_occurred, received_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now().UTC()
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	if incident.Time.IsZero() {
		incident.Time = incident.CreatedAt
	}
	if incident.Intervention.ReceivedAt.IsZero() {
		incident.Intervention.ReceivedAt = incident.CreatedAt
	}
	if incident.State == "" {
		incident.State = domain.IncidentPending
	}
	if incident.Location == "" {
		incident.Location = domain.DefaultIncidentLocation
	}
	if incident.Reporter == "" {
		incident.Reporter = domain.DefaultReporter
	}

	_, err := p.pool.Exec(ctx, query,
		incident.ID,
		incident.Location,
		incident.Time,
		incident.Reporter,
		incident.Detail,
		incident.State,
		incident.IsFall,
		incident.ConfirmedBy,
		incident.Intervention.Occurred,
		incident.Intervention.ReceivedAt,
		incident.CreatedAt,
	)
	if err != nil {
		p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}

	return nil
}

func (p *Incidents) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "postgres.Incident.Get"

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Any("error", err), slog.String("id", id.String()))
		return nil, e.WrapError(ctx, op, err)
	}
	return inc, nil
}

func (p *Incidents) List(ctx context.Context, page, limit int) ([]*domain.Incident, int64, error) {
	const op = "postgres.Incident.List"

	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&total); err != nil {
		p.logger.Error("db count failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, e.WrapError(ctx, op, err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	incidents, err := p.query(ctx, op, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

func (p *Incidents) Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error) {
	const op = "postgres.Incident.Filter"

	var (
		where []string
		args  []any
	)
	if f.Date != nil {
		start := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, start, start.AddDate(0, 0, 1))
		where = append(where, fmt.Sprintf("occurred_at >= $%d AND occurred_at < $%d", len(args)-1, len(args)))
	}
	if f.State != "" {
		args = append(args, f.State)
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		args = append(args, escapeLike(loc))
		where = append(where, fmt.Sprintf(`location ILIKE '%%' || $%d::text || '%%'`, len(args)))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC`

	return p.query(ctx, op, query, args...)
}

func (p *Incidents) Confirm(ctx context.Context, id uuid.UUID, isFall bool, confirmedBy string) (*domain.Incident, error) {
	const op = "postgres.Incident.Confirm"

	query := `
		UPDATE incidents
		SET is_fall      = $2,
			confirmed_by = $3
		WHERE id = $1
		RETURNING ` + incidentColumns

	inc, err := scanIncident(p.pool.QueryRow(ctx, query, id, isFall, confirmedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("id", id.String()))
		return nil, e.WrapError(ctx, op, err)
	}
	return inc, nil
}

// RecordIntervention moves the incident to Attended in a single statement.
// attended_at is overwritten on every call.
func (p *Incidents) RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest, attendedAt time.Time) (*domain.Incident, error) {
	const op = "postgres.Incident.RecordIntervention"

	query := `
		UPDATE incidents
		SET state                 = 'Attended',
			intervention_occurred = true,
			attended_at           = $2,
			attended_by           = $3,
			injury_level          = $4,
			confirmed_by          = $5,
			reporter              = COALESCE($6, reporter),
			location              = COALESCE($7, location),
			detail                = COALESCE($8, detail)
		WHERE id = $1
		RETURNING ` + incidentColumns

	inc, err := scanIncident(p.pool.QueryRow(ctx, query,
		id,
		attendedAt.UTC(),
		req.AttendedBy,
		int32(req.InjuryLevel),
		req.ConfirmedBy,
		req.Reporter,
		req.Location,
		req.Detail,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("id", id.String()))
		return nil, e.WrapError(ctx, op, err)
	}
	return inc, nil
}

func (p *Incidents) query(ctx context.Context, op, query string, args ...any) ([]*domain.Incident, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	incidents := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		incidents = append(incidents, inc)
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return incidents, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
