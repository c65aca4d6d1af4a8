package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresPostRepository implements PostRepository on PostgreSQL.
// Tuned-audience and value-score documents are stored as JSONB so the
// schema follows the pipeline's evolving signal shape without migrations.
type PostgresPostRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPostRepository creates a new PostgresPostRepository.
func NewPostgresPostRepository(db *sql.DB, logger *slog.Logger) *PostgresPostRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPostRepository{db: db, logger: logger}
}

const postColumns = `id, author_id, text, topic, semantic_topics, comment_count,
	reach_mode, tuned_audience, value_score, fact_check_status,
	created_at, updated_at, deleted_at`

// Create inserts a new post with a generated UUID.
func (r *PostgresPostRepository) Create(post *Post) error {
	now := time.Now()
	post.ID = uuid.New().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.ReachMode == "" {
		post.ReachMode = ReachForAll
	}

	audience, err := marshalNullable(post.TunedAudience)
	if err != nil {
		return fmt.Errorf("failed to encode tuned audience: %w", err)
	}
	value, err := marshalNullable(post.ValueScore)
	if err != nil {
		return fmt.Errorf("failed to encode value score: %w", err)
	}

	_, err = r.db.ExecContext(context.Background(), `
		INSERT INTO posts (id, author_id, text, topic, semantic_topics, comment_count,
			reach_mode, tuned_audience, value_score, fact_check_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		post.ID, post.AuthorID, post.Text, post.Topic, pq.Array(post.SemanticTopics),
		post.CommentCount, string(post.ReachMode), audience, value,
		string(post.FactCheckStatus), post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update updates the mutable fields of an existing post.
func (r *PostgresPostRepository) Update(post *Post) error {
	audience, err := marshalNullable(post.TunedAudience)
	if err != nil {
		return fmt.Errorf("failed to encode tuned audience: %w", err)
	}

	res, err := r.db.ExecContext(context.Background(), `
		UPDATE posts
		SET text = $2, topic = $3, semantic_topics = $4, reach_mode = $5,
			tuned_audience = $6, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		post.ID, post.Text, post.Topic, pq.Array(post.SemanticTopics),
		string(post.ReachMode), audience)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return requireRow(res)
}

// Delete soft-deletes a post by setting deleted_at.
func (r *PostgresPostRepository) Delete(id string) error {
	res, err := r.db.ExecContext(context.Background(), `
		UPDATE posts SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return requireRow(res)
}

// GetByID retrieves a post by its UUID, excluding soft-deleted posts.
func (r *PostgresPostRepository) GetByID(id string) (*Post, error) {
	row := r.db.QueryRowContext(context.Background(),
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	return p, err
}

// ListSince retrieves all non-deleted posts created after cutoff,
// ordered by created_at DESC with id as a stable tie-breaker.
func (r *PostgresPostRepository) ListSince(cutoff time.Time) ([]*Post, error) {
	rows, err := r.db.QueryContext(context.Background(), `
		SELECT `+postColumns+` FROM posts
		WHERE deleted_at IS NULL AND ($1::timestamptz IS NULL OR created_at > $1)
		ORDER BY created_at DESC, id ASC`,
		nullableTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var out []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttachValueSignal records the value pipeline's quality estimate and
// moderation verdict inside a single transaction so partially-applied
// signals are never observable.
func (r *PostgresPostRepository) AttachValueSignal(id string, score *ValueScore, status FactCheckStatus) error {
	tx, err := r.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	var deleted sql.NullTime
	err = tx.QueryRow(`SELECT deleted_at FROM posts WHERE id = $1`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up post: %w", err)
	}
	if deleted.Valid {
		// Signal arrived after deletion; drop it.
		return nil
	}

	if score != nil {
		value, err := marshalNullable(score)
		if err != nil {
			return fmt.Errorf("failed to encode value score: %w", err)
		}
		if _, err := tx.Exec(`UPDATE posts SET value_score = $2, updated_at = NOW() WHERE id = $1`, id, value); err != nil {
			return fmt.Errorf("failed to store value score: %w", err)
		}
	}
	if status != "" {
		if _, err := tx.Exec(`UPDATE posts SET fact_check_status = $2, updated_at = NOW() WHERE id = $1`, id, string(status)); err != nil {
			return fmt.Errorf("failed to store fact-check status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetAudienceEmbedding replaces the target-audience embedding on a post.
func (r *PostgresPostRepository) SetAudienceEmbedding(id string, embedding []float64) error {
	res, err := r.db.ExecContext(context.Background(), `
		UPDATE posts
		SET tuned_audience = jsonb_set(COALESCE(tuned_audience, '{}'::jsonb),
			'{target_audience_embedding}', $2::jsonb),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, mustJSON(embedding))
	if err != nil {
		return fmt.Errorf("failed to store audience embedding: %w", err)
	}
	return requireRow(res)
}

// IncrementCommentCount bumps the comment counter for a post.
func (r *PostgresPostRepository) IncrementCommentCount(id string) error {
	res, err := r.db.ExecContext(context.Background(), `
		UPDATE posts SET comment_count = comment_count + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to increment comment count: %w", err)
	}
	return requireRow(res)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*Post, error) {
	var (
		p         Post
		topics    pq.StringArray
		reach     string
		audience  sql.NullString
		value     sql.NullString
		factCheck sql.NullString
		deletedAt sql.NullTime
	)
	err := s.Scan(&p.ID, &p.AuthorID, &p.Text, &p.Topic, &topics, &p.CommentCount,
		&reach, &audience, &value, &factCheck, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.SemanticTopics = []string(topics)
	p.ReachMode = ReachMode(reach)
	if audience.Valid {
		var ta TunedAudience
		if err := json.Unmarshal([]byte(audience.String), &ta); err != nil {
			return nil, fmt.Errorf("failed to decode tuned audience: %w", err)
		}
		p.TunedAudience = &ta
	}
	if value.Valid {
		var vs ValueScore
		if err := json.Unmarshal([]byte(value.String), &vs); err != nil {
			return nil, fmt.Errorf("failed to decode value score: %w", err)
		}
		p.ValueScore = &vs
	}
	if factCheck.Valid {
		p.FactCheckStatus = FactCheckStatus(factCheck.String)
	}
	if deletedAt.Valid {
		d := deletedAt.Time
		p.DeletedAt = &d
	}
	return &p, nil
}

func marshalNullable(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *TunedAudience:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *ValueScore:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable types, which embeddings are not.
		return "null"
	}
	return string(data)
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}
