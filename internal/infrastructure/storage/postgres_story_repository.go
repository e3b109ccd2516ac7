package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

var storyColumns = []string{
	"id", "category", "title", "status", "verification_level",
	"first_seen", "last_updated", "fingerprint", "members", "sources",
	"summary", "summary_state", "summary_attempts", "summary_error",
	"push_notification_sent", "version",
}

// PostgresStoryRepository persists stories and the article index into Postgres.
type PostgresStoryRepository struct {
	db DB
}

var _ ports.StoryRepository = (*PostgresStoryRepository)(nil)

// NewPostgresStoryRepository wires a pgx pool implementation.
func NewPostgresStoryRepository(db DB) *PostgresStoryRepository {
	return &PostgresStoryRepository{db: db}
}

// RecentByCategory returns stories in the category updated at or after since.
func (r *PostgresStoryRepository) RecentByCategory(ctx context.Context, category string, since time.Time, limit int) ([]domain.Story, error) {
	query := psql.Select(storyColumns...).From("stories").
		Where(sq.Eq{"category": category}).
		Where(sq.GtOrEq{"last_updated": since}).
		OrderBy("last_updated DESC", "id")
	return r.list(ctx, withLimit(query, limit))
}

// FindByArticle looks up the article index.
func (r *PostgresStoryRepository) FindByArticle(ctx context.Context, articleID string) (string, bool, error) {
	query, args, err := psql.Select("story_id").From("story_articles").
		Where(sq.Eq{"article_id": articleID}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build query: %w", err)
	}

	var storyID string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&storyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find by article: %w", err)
	}
	return storyID, true, nil
}

// Get loads one story.
func (r *PostgresStoryRepository) Get(ctx context.Context, id string) (domain.Story, error) {
	query, args, err := psql.Select(storyColumns...).From("stories").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Story{}, fmt.Errorf("build query: %w", err)
	}

	story, err := scanStory(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Story{}, domain.ErrStoryNotFound
		}
		return domain.Story{}, fmt.Errorf("get story: %w", err)
	}
	return story, nil
}

// Create inserts the story and indexes its members in one transaction.
func (r *PostgresStoryRepository) Create(ctx context.Context, story *domain.Story) error {
	values, err := storyValues(story)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	values = append(values, 1)
	query, args, err := psql.Insert("stories").Columns(storyColumns...).Values(values...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert story: %w", err)
	}

	indexed, err := indexMembers(ctx, tx, story)
	if err != nil {
		return err
	}
	if indexed < int64(len(story.Members)) {
		return domain.ErrArticleIndexed
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	story.Version = 1
	return nil
}

// Update writes the story when the stored version still matches. Members
// owned by another story roll the write back with ErrArticleIndexed.
func (r *PostgresStoryRepository) Update(ctx context.Context, story *domain.Story) error {
	fp, members, sources, err := encodeStoryJSON(story)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(ctx, tx)

	query, args, err := psql.Update("stories").SetMap(map[string]any{
		"category":               story.Category,
		"title":                  story.Title,
		"status":                 string(story.Status),
		"verification_level":     story.VerificationLevel,
		"first_seen":             story.FirstSeen,
		"last_updated":           story.LastUpdated,
		"fingerprint":            fp,
		"members":                members,
		"sources":                sources,
		"summary":                story.Summary,
		"summary_state":          string(story.SummaryState),
		"summary_attempts":       story.SummaryAttempts,
		"summary_error":          story.SummaryError,
		"push_notification_sent": story.PushNotificationSent,
	}).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": story.ID, "version": story.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	indexed, err := indexMembers(ctx, tx, story)
	if err != nil {
		return err
	}
	if indexed < int64(len(story.Members)) {
		return domain.ErrArticleIndexed
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	story.Version++
	return nil
}

// ListByStatus returns stories in the given status, most recent first.
func (r *PostgresStoryRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Story, error) {
	query := psql.Select(storyColumns...).From("stories").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("last_updated DESC", "id")
	return r.list(ctx, withLimit(query, limit))
}

// ListUnsummarized returns summarization candidates, most recent first.
func (r *PostgresStoryRepository) ListUnsummarized(ctx context.Context, since time.Time, maxAttempts, limit int) ([]domain.Story, error) {
	query := psql.Select(storyColumns...).From("stories").
		Where(sq.Eq{"summary_state": []string{string(domain.SummaryNone), string(domain.SummaryFailed)}}).
		Where(sq.Lt{"summary_attempts": maxAttempts}).
		Where(sq.GtOrEq{"last_updated": since}).
		OrderBy("last_updated DESC", "id")
	return r.list(ctx, withLimit(query, limit))
}

// List serves the read API.
func (r *PostgresStoryRepository) List(ctx context.Context, filter domain.StoryFilter) ([]domain.Story, error) {
	query := psql.Select(storyColumns...).From("stories")
	if filter.Status != "" {
		query = query.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Category != "" {
		query = query.Where(sq.Eq{"category": filter.Category})
	}
	query = query.OrderBy("last_updated DESC", "id")
	return r.list(ctx, withLimit(query, filter.Limit))
}

func (r *PostgresStoryRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]domain.Story, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var out []domain.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		out = append(out, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func withLimit(builder sq.SelectBuilder, limit int) sq.SelectBuilder {
	if limit > 0 {
		return builder.Limit(uint64(limit))
	}
	return builder
}

// indexMembers records article ownership, skipping articles already indexed.
// It returns the number of newly indexed articles.
func indexMembers(ctx context.Context, tx pgx.Tx, story *domain.Story) (int64, error) {
	if len(story.Members) == 0 {
		return 0, nil
	}

	insert := psql.Insert("story_articles").Columns("article_id", "story_id")
	for _, m := range story.Members {
		insert = insert.Values(m.ArticleID, story.ID)
	}
	// Rows already owned by this story are touched so they count as affected;
	// rows owned by another story are not, which the callers detect.
	query, args, err := insert.Suffix(
		"ON CONFLICT (article_id) DO UPDATE SET story_id = EXCLUDED.story_id " +
			"WHERE story_articles.story_id = EXCLUDED.story_id").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build index insert: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("index articles: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (domain.Story, error) {
	var (
		story                domain.Story
		status, summaryState string
		fp, members, sources []byte
	)
	err := row.Scan(
		&story.ID,
		&story.Category,
		&story.Title,
		&status,
		&story.VerificationLevel,
		&story.FirstSeen,
		&story.LastUpdated,
		&fp,
		&members,
		&sources,
		&story.Summary,
		&summaryState,
		&story.SummaryAttempts,
		&story.SummaryError,
		&story.PushNotificationSent,
		&story.Version,
	)
	if err != nil {
		return domain.Story{}, err
	}

	story.Status = domain.Status(status)
	story.SummaryState = domain.SummaryState(summaryState)
	if err := json.Unmarshal(fp, &story.Fingerprint); err != nil {
		return domain.Story{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	if err := json.Unmarshal(members, &story.Members); err != nil {
		return domain.Story{}, fmt.Errorf("decode members: %w", err)
	}
	if err := json.Unmarshal(sources, &story.Sources); err != nil {
		return domain.Story{}, fmt.Errorf("decode sources: %w", err)
	}
	story.FirstSeen = story.FirstSeen.UTC()
	story.LastUpdated = story.LastUpdated.UTC()
	return story, nil
}

func encodeStoryJSON(story *domain.Story) (fp, members, sources []byte, err error) {
	if fp, err = json.Marshal(story.Fingerprint); err != nil {
		return nil, nil, nil, fmt.Errorf("encode fingerprint: %w", err)
	}
	if members, err = json.Marshal(story.Members); err != nil {
		return nil, nil, nil, fmt.Errorf("encode members: %w", err)
	}
	if sources, err = json.Marshal(story.Sources); err != nil {
		return nil, nil, nil, fmt.Errorf("encode sources: %w", err)
	}
	return fp, members, sources, nil
}

// storyValues follows storyColumns minus the trailing version.
func storyValues(story *domain.Story) ([]any, error) {
	fp, members, sources, err := encodeStoryJSON(story)
	if err != nil {
		return nil, err
	}
	return []any{
		story.ID,
		story.Category,
		story.Title,
		string(story.Status),
		story.VerificationLevel,
		story.FirstSeen,
		story.LastUpdated,
		fp,
		members,
		sources,
		story.Summary,
		string(story.SummaryState),
		story.SummaryAttempts,
		story.SummaryError,
		story.PushNotificationSent,
	}, nil
}
