// Package postgres persists the raw quiz source text, one document per
// source id, and turns it back into a parsed bank on load.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/nthbao13/cloud-quiz/internal/domain"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
)

// SourceStore reads and writes quiz source documents in Postgres.
type SourceStore struct {
	pool *pgxpool.Pool
}

func NewSourceStore(pool *pgxpool.Pool) *SourceStore {
	return &SourceStore{pool: pool}
}

// LoadSource returns the raw source text for one source id.
func (s *SourceStore) LoadSource(ctx context.Context, id string) (string, error) {
	var data string
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_sources WHERE id=$1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrQuizNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load quiz source %s: %w", id, err)
	}
	return data, nil
}

// SaveSource upserts the raw source text for one source id.
func (s *SourceStore) SaveSource(ctx context.Context, id, data string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sources (id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		id, data)
	if err != nil {
		return fmt.Errorf("save quiz source %s: %w", id, err)
	}
	return nil
}

// LoadBank loads and parses the source into a question bank.
func (s *SourceStore) LoadBank(ctx context.Context, id string) (quizbank.Bank, error) {
	data, err := s.LoadSource(ctx, id)
	if err != nil {
		return quizbank.Bank{}, err
	}
	return quizbank.ParseBank(data), nil
}
