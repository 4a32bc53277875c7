package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/odds-notifier/internal/models"
)

const userColumns = `id, external_id, username, first_name, last_name, registered_at, trial_left`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName,
		&u.RegisteredAt, &u.TrialLeft); err != nil {
		return nil, err
	}
	u.RegisteredAt = u.RegisteredAt.UTC()
	return &u, nil
}

// GetOrCreateUser возвращает пользователя по внешнему id или создаёт его.
// Второе значение true, если пользователь создан этим вызовом.
func (s *Storage) GetOrCreateUser(ctx context.Context, u models.User) (*models.User, bool, error) {
	const op = "storage.postgresql.GetOrCreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	query := `INSERT INTO users (external_id, username, first_name, last_name, registered_at, trial_left)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (external_id) DO NOTHING
			  RETURNING ` + userColumns
	created, err := scanUser(s.DB.QueryRowContext(ctx, query,
		u.ExternalID, u.Username, u.FirstName, u.LastName, u.RegisteredAt, u.TrialLeft))
	switch {
	case err == nil:
		return created, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, mapErr(op, err)
	}

	existing, err := s.UserByExternalID(ctx, u.ExternalID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// UserByID ищет пользователя по внутреннему id.
func (s *Storage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.postgresql.UserByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// UserByExternalID ищет пользователя по идентификатору чата.
func (s *Storage) UserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	const op = "storage.postgresql.UserByExternalID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// UserByUsername ищет пользователя по имени без учёта регистра.
// При совпадении нескольких возвращает зарегистрированного раньше.
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.postgresql.UserByUsername"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}

	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1) ORDER BY id LIMIT 1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	return u, nil
}

// ConsumeTrial уменьшает остаток пробных поисков, не опуская его ниже нуля.
func (s *Storage) ConsumeTrial(ctx context.Context, userID int64) (int, error) {
	const op = "storage.postgresql.ConsumeTrial"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var left int
	err := s.DB.QueryRowContext(ctx,
		`UPDATE users SET trial_left = GREATEST(trial_left - 1, 0) WHERE id = $1 RETURNING trial_left`,
		userID).Scan(&left)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", op, models.ErrUserNotFound)
	}
	if err != nil {
		return 0, mapErr(op, err)
	}
	return left, nil
}

// CountUsers возвращает число пользователей.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	const op = "storage.postgresql.CountUsers"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, mapErr(op, err)
	}
	return count, nil
}
