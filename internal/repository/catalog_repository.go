package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// catalogRepo reads theaters, movies and users.  The catalog itself is
// managed elsewhere; the booking core never writes these tables.
type catalogRepo struct {
	ext sqlx.ExtContext
}

func (r *catalogRepo) Theater(ctx context.Context, theaterID uint64) (model.Theater, error) {
	const q = `SELECT t.id, t.name, t.movie_id, m.name AS movie_name, t.starts_at
	           FROM theaters t JOIN movies m ON m.id = t.movie_id
	           WHERE t.id = ?`
	var t model.Theater
	if err := sqlx.GetContext(ctx, r.ext, &t, q, theaterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Theater{}, ErrTheaterNotFound
		}
		return model.Theater{}, err
	}
	return t, nil
}

func (r *catalogRepo) UserExists(ctx context.Context, userID uint64) error {
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID); err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}
