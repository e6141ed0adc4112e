package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"careAlert/internal/domain"
	"careAlert/pkg/e"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const staffColumns = `code, name, schedule, status, sub_endpoint, sub_p256dh, sub_auth, created_at, updated_at`

type Staff struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStaff(pool *pgxpool.Pool, logger *slog.Logger) *Staff {
	return &Staff{pool: pool, logger: logger}
}

func scanStaff(row pgx.Row) (*domain.StaffMember, error) {
	var (
		m                      domain.StaffMember
		endpoint, p256dh, auth *string
	)
	if err := row.Scan(
		&m.Code,
		&m.Name,
		&m.Schedule,
		&m.Status,
		&endpoint,
		&p256dh,
		&auth,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if endpoint != nil {
		code := m.Code
		m.Subscription = &domain.PushSubscription{
			Endpoint:  *endpoint,
			Keys:      domain.PushKeys{P256dh: deref(p256dh), Auth: deref(auth)},
			StaffCode: &code,
		}
	}
	return &m, nil
}

func (s *Staff) Create(ctx context.Context, member *domain.StaffMember) error {
	const op = "postgres.Staff.Create"

	if member.Status == "" {
		member.Status = domain.StaffActive
	}

	const query = `
		INSERT INTO staff (code, name, schedule, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, member.Code, member.Name, member.Schedule, member.Status).
		Scan(&member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("code", member.Code))
		return e.WrapError(ctx, op, err)
	}
	return nil
}

func (s *Staff) Get(ctx context.Context, code string) (*domain.StaffMember, error) {
	const op = "postgres.Staff.Get"

	m, err := scanStaff(s.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		s.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Any("error", err), slog.String("code", code))
		return nil, e.WrapError(ctx, op, err)
	}
	return m, nil
}

func (s *Staff) List(ctx context.Context) ([]*domain.StaffMember, error) {
	return s.query(ctx, "postgres.Staff.List", `SELECT `+staffColumns+` FROM staff ORDER BY code`)
}

// ListSubscribed returns every staff member whose embedded subscription is set.
func (s *Staff) ListSubscribed(ctx context.Context) ([]*domain.StaffMember, error) {
	return s.query(ctx, "postgres.Staff.ListSubscribed",
		`SELECT `+staffColumns+` FROM staff WHERE sub_endpoint IS NOT NULL ORDER BY code`)
}

func (s *Staff) Update(ctx context.Context, code string, req domain.UpdateStaffRequest) (*domain.StaffMember, error) {
	const op = "postgres.Staff.Update"

	query := `
		UPDATE staff
		SET name         = COALESCE($2, name),
			schedule     = COALESCE($3, schedule),
			status       = COALESCE($4, status),
			sub_endpoint = CASE WHEN $5 THEN NULL ELSE sub_endpoint END,
			sub_p256dh   = CASE WHEN $5 THEN NULL ELSE sub_p256dh END,
			sub_auth     = CASE WHEN $5 THEN NULL ELSE sub_auth END,
			updated_at   = now()
		WHERE code = $1
		RETURNING ` + staffColumns

	var status *string
	if req.Status != nil {
		st := string(*req.Status)
		status = &st
	}

	m, err := scanStaff(s.pool.QueryRow(ctx, query, code, req.Name, req.Schedule, status, req.RemoveSubscription))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("code", code))
		return nil, e.WrapError(ctx, op, err)
	}
	return m, nil
}

// Delete removes the member and returns the deleted row so callers can drop its subscription.
func (s *Staff) Delete(ctx context.Context, code string) (*domain.StaffMember, error) {
	const op = "postgres.Staff.Delete"

	m, err := scanStaff(s.pool.QueryRow(ctx, `DELETE FROM staff WHERE code = $1 RETURNING `+staffColumns, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("code", code))
		return nil, e.WrapError(ctx, op, err)
	}
	return m, nil
}

// SetSubscription replaces the member's subscription and unlinks the same endpoint
// from any other member, so one device is never targeted twice.
func (s *Staff) SetSubscription(ctx context.Context, code string, sub domain.PushSubscription) (*domain.PushSubscription, error) {
	const op = "postgres.Staff.SetSubscription"

	var previous *domain.PushSubscription
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var endpoint, p256dh, auth *string
		err := tx.QueryRow(ctx,
			`SELECT sub_endpoint, sub_p256dh, sub_auth FROM staff WHERE code = $1 FOR UPDATE`, code,
		).Scan(&endpoint, &p256dh, &auth)
		if err != nil {
			return err
		}
		if endpoint != nil {
			c := code
			previous = &domain.PushSubscription{
				Endpoint:  *endpoint,
				Keys:      domain.PushKeys{P256dh: deref(p256dh), Auth: deref(auth)},
				StaffCode: &c,
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE staff
			SET sub_endpoint = NULL, sub_p256dh = NULL, sub_auth = NULL, updated_at = now()
			WHERE sub_endpoint = $1 AND code <> $2
		`, sub.Endpoint, code); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE staff
			SET sub_endpoint = $2, sub_p256dh = $3, sub_auth = $4, updated_at = now()
			WHERE code = $1
		`, code, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		s.logger.Error("db tx failed", slog.String("op", op), slog.Any("error", err), slog.String("code", code))
		return nil, e.WrapError(ctx, op, err)
	}
	return previous, nil
}

// ClearSubscription unsets the embedded subscription only while it still points at endpoint.
// Clearing an already cleared or replaced subscription is a no-op and reports false.
func (s *Staff) ClearSubscription(ctx context.Context, code, endpoint string) (bool, error) {
	const op = "postgres.Staff.ClearSubscription"

	cmd, err := s.pool.Exec(ctx, `
		UPDATE staff
		SET sub_endpoint = NULL, sub_p256dh = NULL, sub_auth = NULL, updated_at = now()
		WHERE code = $1 AND sub_endpoint = $2
	`, code, endpoint)
	if err != nil {
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err), slog.String("code", code))
		return false, e.WrapError(ctx, op, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *Staff) query(ctx context.Context, op, query string, args ...any) ([]*domain.StaffMember, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	members := make([]*domain.StaffMember, 0)
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			s.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return members, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
