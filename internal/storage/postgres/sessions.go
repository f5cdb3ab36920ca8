package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

const deleteSessionsByUserIDQuery = `
DELETE FROM sessions
       WHERE user_id = $1
`

func (s *Store) ReplaceSession(ctx context.Context, session *models.Session) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			deleteSessionsByUserIDQuery,
			session.UserID,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to delete sessions by user id")
			return err
		}
		s.logger.Debug().
			Str("user_id", session.UserID).
			Int64("affected", tag.RowsAffected()).
			Msg("deleted sessions by user id")

		const insertSessionQuery = `
INSERT INTO sessions (id,
                      user_id,
                      fingerprint,
                      expires_at,
                      created_at)
VALUES ($1, $2, $3, $4, $5)
`
		_, err = tx.Exec(
			ctx,
			insertSessionQuery,
			session.ID,
			session.UserID,
			session.Fingerprint,
			session.ExpiresAt,
			session.CreatedAt,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to insert session")
			return err
		}
		s.logger.Debug().
			Str("session_id", session.ID).
			Msg("inserted session")
		return nil
	})
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{
		ID: id,
	}

	const selectSessionByIDQuery = `
SELECT user_id,
       fingerprint,
       expires_at,
       created_at
FROM sessions
WHERE id = $1
`
	err := s.pool.QueryRow(
		ctx,
		selectSessionByIDQuery,
		session.ID,
	).Scan(
		&session.UserID,
		&session.Fingerprint,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		s.logger.Error().
			Err(err).
			Str("session_id", session.ID).
			Msg("failed to select session by id")
		return nil, err
	}
	s.logger.Debug().
		Str("session_id", session.ID).
		Time("expires_at", session.ExpiresAt).
		Msg("selected session by id")
	return session, nil
}

func (s *Store) DeleteSessionsByUserID(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(
		ctx,
		deleteSessionsByUserIDQuery,
		userID,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to delete sessions by user id")
		return 0, err
	}
	s.logger.Debug().
		Str("user_id", userID).
		Int64("affected", tag.RowsAffected()).
		Msg("deleted sessions by user id")
	return tag.RowsAffected(), nil
}
