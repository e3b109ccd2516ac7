package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
	"NewsDesk/pkg/logger"
)

// OpenBadger opens (creating if needed) an embedded store at path.
func OpenBadger(path string, l *slog.Logger) (*badgerhold.Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = logger.NewBadger(l)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return store, nil
}

// storyRecord flattens the fields queried by badgerhold next to the story.
type storyRecord struct {
	ID              string
	Category        string
	Status          string
	SummaryState    string
	SummaryAttempts int
	UpdatedUnix     int64
	Story           domain.Story
}

func newStoryRecord(s domain.Story) storyRecord {
	return storyRecord{
		ID:              s.ID,
		Category:        s.Category,
		Status:          string(s.Status),
		SummaryState:    string(s.SummaryState),
		SummaryAttempts: s.SummaryAttempts,
		UpdatedUnix:     s.LastUpdated.UnixNano(),
		Story:           s,
	}
}

// articleRecord is the article index entry, keyed by article id.
type articleRecord struct {
	StoryID string
}

// BadgerStoryRepository keeps stories in an embedded badgerhold store.
type BadgerStoryRepository struct {
	store *badgerhold.Store
}

var _ ports.StoryRepository = (*BadgerStoryRepository)(nil)

func NewBadgerStoryRepository(store *badgerhold.Store) *BadgerStoryRepository {
	return &BadgerStoryRepository{store: store}
}

func (r *BadgerStoryRepository) RecentByCategory(_ context.Context, category string, since time.Time, limit int) ([]domain.Story, error) {
	query := badgerhold.Where("Category").Eq(category).
		And("UpdatedUnix").Ge(since.UnixNano())
	return r.find(query, limit)
}

func (r *BadgerStoryRepository) FindByArticle(_ context.Context, articleID string) (string, bool, error) {
	var rec articleRecord
	if err := r.store.Get(articleID, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find by article: %w", err)
	}
	return rec.StoryID, true, nil
}

func (r *BadgerStoryRepository) Get(_ context.Context, id string) (domain.Story, error) {
	var rec storyRecord
	if err := r.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.Story{}, domain.ErrStoryNotFound
		}
		return domain.Story{}, fmt.Errorf("get story: %w", err)
	}
	return rec.Story, nil
}

// Create stores the story and its article index entries in one transaction.
func (r *BadgerStoryRepository) Create(_ context.Context, story *domain.Story) error {
	created := story.Clone()
	created.Version = 1

	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		for _, m := range created.Members {
			var existing articleRecord
			err := r.store.TxGet(tx, m.ArticleID, &existing)
			if err == nil {
				return domain.ErrArticleIndexed
			}
			if !errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("check article index: %w", err)
			}
		}

		if err := r.store.TxInsert(tx, created.ID, newStoryRecord(created)); err != nil {
			return fmt.Errorf("insert story: %w", err)
		}
		return indexArticles(r.store, tx, &created)
	})
	if err != nil {
		return mapTxnError(err)
	}

	story.Version = 1
	return nil
}

// Update writes the story only when the stored version matches. Members owned
// by another story fail the whole write with ErrArticleIndexed.
func (r *BadgerStoryRepository) Update(_ context.Context, story *domain.Story) error {
	next := story.Clone()
	next.Version = story.Version + 1

	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var current storyRecord
		if err := r.store.TxGet(tx, story.ID, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrStoryNotFound
			}
			return fmt.Errorf("load story: %w", err)
		}
		if current.Story.Version != story.Version {
			return domain.ErrVersionConflict
		}

		if err := r.store.TxUpdate(tx, next.ID, newStoryRecord(next)); err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		return indexArticles(r.store, tx, &next)
	})
	if err != nil {
		return mapTxnError(err)
	}

	story.Version = next.Version
	return nil
}

func (r *BadgerStoryRepository) ListByStatus(_ context.Context, status domain.Status, limit int) ([]domain.Story, error) {
	return r.find(badgerhold.Where("Status").Eq(string(status)), limit)
}

func (r *BadgerStoryRepository) ListUnsummarized(_ context.Context, since time.Time, maxAttempts, limit int) ([]domain.Story, error) {
	query := badgerhold.Where("SummaryState").In(string(domain.SummaryNone), string(domain.SummaryFailed)).
		And("SummaryAttempts").Lt(maxAttempts).
		And("UpdatedUnix").Ge(since.UnixNano())
	return r.find(query, limit)
}

func (r *BadgerStoryRepository) List(_ context.Context, filter domain.StoryFilter) ([]domain.Story, error) {
	query := badgerhold.Where("ID").Ne("")
	if filter.Status != "" {
		query = query.And("Status").Eq(string(filter.Status))
	}
	if filter.Category != "" {
		query = query.And("Category").Eq(filter.Category)
	}
	return r.find(query, filter.Limit)
}

// find returns matching stories, most recently updated first.
func (r *BadgerStoryRepository) find(query *badgerhold.Query, limit int) ([]domain.Story, error) {
	query = query.SortBy("UpdatedUnix").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []storyRecord
	if err := r.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("find stories: %w", err)
	}

	out := make([]domain.Story, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Story)
	}
	return out, nil
}

// indexArticles records members not yet present in the article index. A
// member already indexed to another story fails with ErrArticleIndexed.
func indexArticles(store *badgerhold.Store, tx *badger.Txn, story *domain.Story) error {
	for _, m := range story.Members {
		var existing articleRecord
		err := store.TxGet(tx, m.ArticleID, &existing)
		if err == nil {
			if existing.StoryID != story.ID {
				return domain.ErrArticleIndexed
			}
			continue
		}
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("check article index: %w", err)
		}
		if err := store.TxInsert(tx, m.ArticleID, articleRecord{StoryID: story.ID}); err != nil {
			return fmt.Errorf("index article: %w", err)
		}
	}
	return nil
}

// mapTxnError reports concurrent badger commits as version conflicts.
func mapTxnError(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrVersionConflict
	}
	return err
}

// batchRecord wraps a job with the fields ListOpen filters and sorts on.
type batchRecord struct {
	ID          string
	Archived    bool
	CreatedUnix int64
	Job         domain.BatchJob
}

func newBatchRecord(job domain.BatchJob) batchRecord {
	return batchRecord{
		ID:          job.ID,
		Archived:    job.ArchivedAt != nil,
		CreatedUnix: job.CreatedAt.UnixNano(),
		Job:         job,
	}
}

// BadgerBatchJobRepository keeps batch jobs next to the stories.
type BadgerBatchJobRepository struct {
	store *badgerhold.Store
}

var _ ports.BatchJobRepository = (*BadgerBatchJobRepository)(nil)

func NewBadgerBatchJobRepository(store *badgerhold.Store) *BadgerBatchJobRepository {
	return &BadgerBatchJobRepository{store: store}
}

func (r *BadgerBatchJobRepository) Create(_ context.Context, job *domain.BatchJob) error {
	if err := r.store.Insert(job.ID, newBatchRecord(*job)); err != nil {
		return fmt.Errorf("insert batch job: %w", err)
	}
	return nil
}

func (r *BadgerBatchJobRepository) Update(_ context.Context, job *domain.BatchJob) error {
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var current batchRecord
		if err := r.store.TxGet(tx, job.ID, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrBatchJobNotFound
			}
			return fmt.Errorf("load batch job: %w", err)
		}
		next := *job
		next.ArchivedAt = current.Job.ArchivedAt
		return r.store.TxUpdate(tx, job.ID, newBatchRecord(next))
	})
	if err != nil {
		if errors.Is(err, domain.ErrBatchJobNotFound) {
			return err
		}
		return fmt.Errorf("update batch job: %w", err)
	}
	return nil
}

func (r *BadgerBatchJobRepository) ListOpen(context.Context) ([]domain.BatchJob, error) {
	var records []batchRecord
	query := badgerhold.Where("Archived").Eq(false).SortBy("CreatedUnix", "ID")
	if err := r.store.Find(&records, query); err != nil {
		return nil, fmt.Errorf("list batch jobs: %w", err)
	}

	out := make([]domain.BatchJob, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Job)
	}
	return out, nil
}

func (r *BadgerBatchJobRepository) Archive(_ context.Context, id string, at time.Time) error {
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var current batchRecord
		if err := r.store.TxGet(tx, id, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrBatchJobNotFound
			}
			return fmt.Errorf("load batch job: %w", err)
		}
		current.Job.ArchivedAt = &at
		return r.store.TxUpdate(tx, id, newBatchRecord(current.Job))
	})
	if err != nil {
		if errors.Is(err, domain.ErrBatchJobNotFound) {
			return err
		}
		return fmt.Errorf("archive batch job: %w", err)
	}
	return nil
}
