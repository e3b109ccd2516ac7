package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"NewsDesk/internal/content"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/fingerprint"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/similarity"
	"NewsDesk/internal/status"
)

// DefaultCategory is used when a feed does not classify its articles.
const DefaultCategory = "general"

// ResolverConfig bounds candidate search and conflict handling.
type ResolverConfig struct {
	CandidateLimit  int
	CandidateWindow time.Duration
	MaxClockSkew    time.Duration
	ConflictRetries int
	// MemberSample caps how many member titles a candidate is scored by:
	// the founding member plus the most recent ones.
	MemberSample int
	CacheSize    int
}

// DefaultResolverConfig mirrors the configuration defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CandidateLimit:  200,
		CandidateWindow: 48 * time.Hour,
		MaxClockSkew:    15 * time.Minute,
		ConflictRetries: defaultConflictRetries,
		MemberSample:    6,
		CacheSize:       10000,
	}
}

// Resolution is the outcome of resolving one article plus the story as
// written by the resolver.
type Resolution struct {
	Result domain.IngestResult
	Story  domain.Story
}

// Resolver decides merge-vs-create for each article.
type Resolver struct {
	repo     ports.StoryRepository
	analyzer *fingerprint.Generator
	scorer   *similarity.Scorer
	machine  *status.Machine
	cfg      ResolverConfig
	resolved *lru.Cache[string, string]
	creates  keyedMutex
	logger   *slog.Logger
	now      func() time.Time
}

// keyedMutex hands out one mutex per key. Keys are categories, a small set,
// so entries are never evicted.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// NewResolver wires the resolver.
func NewResolver(repo ports.StoryRepository, analyzer *fingerprint.Generator, scorer *similarity.Scorer, machine *status.Machine, cfg ResolverConfig, logger *slog.Logger) (*Resolver, error) {
	def := DefaultResolverConfig()
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	if cfg.CandidateWindow <= 0 {
		cfg.CandidateWindow = def.CandidateWindow
	}
	if cfg.MemberSample <= 0 {
		cfg.MemberSample = def.MemberSample
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	cache, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create article cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		repo:     repo,
		analyzer: analyzer,
		scorer:   scorer,
		machine:  machine,
		cfg:      cfg,
		resolved: cache,
		logger:   logger.With("component", "resolver"),
		now:      time.Now,
	}, nil
}

// Resolve merges the article into the best matching recent story of its
// category or seeds a new story. Re-delivered article ids are no-ops.
func (r *Resolver) Resolve(ctx context.Context, article domain.Article) (Resolution, error) {
	now := r.now().UTC()
	res := Resolution{Result: domain.IngestResult{ArticleID: article.ID}}

	if err := r.validate(&article, now); err != nil {
		res.Result.Outcome = domain.OutcomeInvalid
		res.Result.Reason = err.Error()
		return res, err
	}

	if storyID, ok, err := r.lookup(ctx, article.ID); err != nil {
		return res, err
	} else if ok {
		res.Result.Outcome = domain.OutcomeDuplicate
		res.Result.StoryID = storyID
		return res, nil
	}

	features := r.analyzer.Analyze(article.Title)
	best, match, err := r.search(ctx, article.Category, features, now)
	if err != nil {
		return res, err
	}
	if best == nil {
		// Creates are serialized per category. The search is repeated under
		// the lock so articles of one event arriving together seed one story.
		unlock := r.creates.lock(article.Category)
		defer unlock()

		best, match, err = r.search(ctx, article.Category, features, now)
		if err != nil {
			return res, err
		}
		if best == nil {
			return r.create(ctx, article, features, now)
		}
	}
	res.Result.Score = match.Score

	r.logger.Debug("article matched story",
		"article_id", article.ID,
		"story_id", best.ID,
		"score", match.Score,
		"entity_fallback", match.EntityFallback)

	return r.merge(ctx, *best, article, match, now)
}

func (r *Resolver) search(ctx context.Context, category string, features fingerprint.Features, now time.Time) (*domain.Story, similarity.Match, error) {
	candidates, err := r.repo.RecentByCategory(ctx, category, now.Add(-r.cfg.CandidateWindow), r.cfg.CandidateLimit)
	if err != nil {
		return nil, similarity.Match{}, fmt.Errorf("load candidates: %w", err)
	}
	best, match := r.bestCandidate(features, byHash(features.Fingerprint.Hash, candidates))
	return best, match, nil
}

// byHash is the fingerprint pre-filter: candidates sharing the article's hash
// move to the front, recency order kept within each group, so they are
// scored first and win score ties. Every candidate is still scored.
func byHash(hash string, candidates []domain.Story) []domain.Story {
	if hash == "" {
		return candidates
	}
	out := make([]domain.Story, 0, len(candidates))
	for _, c := range candidates {
		if c.Fingerprint.Hash == hash {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if c.Fingerprint.Hash != hash {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) validate(a *domain.Article, now time.Time) error {
	a.ID = strings.TrimSpace(a.ID)
	a.Source = strings.TrimSpace(a.Source)
	a.Category = strings.ToLower(strings.TrimSpace(a.Category))
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	if a.ID == "" || a.Source == "" || strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("article %q: id, source and title are required: %w", a.ID, domain.ErrInvalidArticle)
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("article %s: missing published time: %w", a.ID, domain.ErrInvalidTimestamp)
	}
	if a.PublishedAt.After(now.Add(r.cfg.MaxClockSkew)) {
		return fmt.Errorf("article %s: published %s is ahead of %s: %w",
			a.ID, a.PublishedAt.Format(time.RFC3339), now.Format(time.RFC3339), domain.ErrInvalidTimestamp)
	}
	a.PublishedAt = a.PublishedAt.UTC()
	return nil
}

func (r *Resolver) lookup(ctx context.Context, articleID string) (string, bool, error) {
	if storyID, ok := r.resolved.Get(articleID); ok {
		return storyID, true, nil
	}
	storyID, ok, err := r.repo.FindByArticle(ctx, articleID)
	if err != nil {
		return "", false, fmt.Errorf("lookup article %s: %w", articleID, err)
	}
	if ok {
		r.resolved.Add(articleID, storyID)
	}
	return storyID, ok, nil
}

// bestCandidate returns the highest scoring matching story. Candidates arrive
// most recent first, so the earlier story wins a tie.
func (r *Resolver) bestCandidate(article fingerprint.Features, candidates []domain.Story) (*domain.Story, similarity.Match) {
	var (
		best  *domain.Story
		match similarity.Match
	)
	for i := range candidates {
		m := r.scorer.Best(article, r.memberFeatures(&candidates[i]))
		if !m.Matched {
			continue
		}
		if best == nil || m.Score > match.Score {
			best = &candidates[i]
			match = m
		}
	}
	return best, match
}

func (r *Resolver) memberFeatures(s *domain.Story) []fingerprint.Features {
	members := s.Members
	if len(members) == 0 {
		return []fingerprint.Features{r.analyzer.Analyze(s.Title)}
	}
	sample := []domain.MemberRef{members[0]}
	start := len(members) - (r.cfg.MemberSample - 1)
	if start < 1 {
		start = 1
	}
	sample = append(sample, members[start:]...)

	out := make([]fingerprint.Features, 0, len(sample))
	for _, m := range sample {
		out = append(out, r.analyzer.Analyze(m.Title))
	}
	return out
}

func (r *Resolver) memberRef(a domain.Article, now time.Time) domain.MemberRef {
	return domain.MemberRef{
		ArticleID:   a.ID,
		Source:      a.Source,
		Title:       a.Title,
		URL:         a.URL,
		Snippet:     content.Clean(a.Description),
		PublishedAt: a.PublishedAt,
		AddedAt:     now,
	}
}

func (r *Resolver) create(ctx context.Context, a domain.Article, features fingerprint.Features, now time.Time) (Resolution, error) {
	story := domain.Story{
		ID:          uuid.NewString(),
		Category:    a.Category,
		Title:       strings.TrimSpace(a.Title),
		FirstSeen:   a.PublishedAt,
		LastUpdated: a.PublishedAt,
		Fingerprint: features.Fingerprint,
	}
	story.AddMember(r.memberRef(a, now))
	r.machine.Apply(&story, now)

	res := Resolution{Result: domain.IngestResult{ArticleID: a.ID}}
	if err := r.repo.Create(ctx, &story); err != nil {
		if errors.Is(err, domain.ErrArticleIndexed) {
			res.Result.Outcome = domain.OutcomeDuplicate
			return res, nil
		}
		return res, fmt.Errorf("create story: %w", err)
	}
	r.resolved.Add(a.ID, story.ID)

	res.Result.Outcome = domain.OutcomeCreated
	res.Result.StoryID = story.ID
	res.Result.NewSource = true
	res.Story = story

	r.logger.Info("story created",
		"story_id", story.ID,
		"article_id", a.ID,
		"category", story.Category,
		"hash", story.Fingerprint.Hash)
	return res, nil
}

func (r *Resolver) merge(ctx context.Context, story domain.Story, a domain.Article, match similarity.Match, now time.Time) (Resolution, error) {
	ref := r.memberRef(a, now)
	var (
		newSource  bool
		duplicate  bool
		transition status.Transition
	)

	updated, changed, err := updateStory(ctx, r.repo, story, r.cfg.ConflictRetries, "resolver", func(s *domain.Story) (bool, error) {
		duplicate = s.HasArticle(a.ID)
		if duplicate {
			return false, nil
		}
		newSource = s.AddMember(ref)
		if now.After(s.LastUpdated) {
			s.LastUpdated = now
		}
		transition = r.machine.Apply(s, now)
		if s.SummaryState == domain.SummaryContentGap && ref.Snippet != "" {
			s.SummaryState = domain.SummaryNone
		}
		return true, nil
	})

	res := Resolution{Result: domain.IngestResult{ArticleID: a.ID, StoryID: story.ID, Score: match.Score}}
	if errors.Is(err, domain.ErrArticleIndexed) {
		// A concurrent delivery of the same article already joined another story.
		res.Result.Outcome = domain.OutcomeDuplicate
		res.Result.StoryID = ""
		if owner, ok, lerr := r.lookup(ctx, a.ID); lerr == nil && ok {
			res.Result.StoryID = owner
		}
		r.logger.Info("article already indexed to another story",
			"article_id", a.ID,
			"story_id", story.ID,
			"owner_id", res.Result.StoryID)
		return res, nil
	}
	if err != nil {
		res.Result.Outcome = domain.OutcomeSkipped
		res.Result.Reason = err.Error()
		return res, err
	}
	r.resolved.Add(a.ID, story.ID)
	if !changed || duplicate {
		res.Result.Outcome = domain.OutcomeDuplicate
		return res, nil
	}

	res.Result.Outcome = domain.OutcomeMerged
	res.Result.NewSource = newSource
	res.Story = updated
	if transition.Changed {
		res.Result.Transition = &domain.StatusChange{From: transition.From, To: transition.To}
	}

	r.logger.Info("article merged",
		"story_id", updated.ID,
		"article_id", a.ID,
		"score", match.Score,
		"verification_level", updated.VerificationLevel,
		"status", updated.Status)
	return res, nil
}
