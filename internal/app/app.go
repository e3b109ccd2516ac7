package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"NewsDesk/internal/config"
	"NewsDesk/internal/domain"
	"NewsDesk/internal/fingerprint"
	"NewsDesk/internal/infrastructure/llm"
	"NewsDesk/internal/infrastructure/ml"
	"NewsDesk/internal/infrastructure/scheduler"
	"NewsDesk/internal/infrastructure/source"
	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/infrastructure/stream"
	"NewsDesk/internal/infrastructure/telegram"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/metrics"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/retry"
	"NewsDesk/internal/similarity"
	"NewsDesk/internal/spam"
	"NewsDesk/internal/status"
	"NewsDesk/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	stories       ports.StoryRepository
	jobs          ports.BatchJobRepository
	redis         *redis.Client
	pipeline      *usecase.Pipeline
	sweeper       *usecase.Sweeper
	summarization *usecase.Summarization
	reader        *usecase.StoryService

	closers []func() error
}

// New opens storage and builds every collaborator named by the configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithFormat(io.Discard, cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	immediate, err := a.immediateSummarizer()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	batch, err := a.batchSummarizer()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	notifier, err := a.notifier()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cc := cfg.Clustering
	machine := status.NewMachine(cfg.Status.BreakingWindow)
	resolver, err := usecase.NewResolver(
		a.stories,
		fingerprint.NewGenerator(cc.Keywords, cc.Entities, cc.HashLength),
		similarity.NewScorer(cc.Weights, cc.Threshold),
		machine,
		usecase.ResolverConfig{
			CandidateLimit:  cc.CandidateLimit,
			CandidateWindow: cc.CandidateWindow,
			MaxClockSkew:    cc.MaxClockSkew,
			ConflictRetries: cc.ConflictRetries,
			MemberSample:    cc.MemberSample,
			CacheSize:       cc.CacheSize,
		},
		baseLogger,
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	sc := cfg.Summarization
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = sc.RetryAttempts
	a.summarization = usecase.NewSummarization(usecase.SummarizationDeps{
		Stories:    a.stories,
		Jobs:       a.jobs,
		Summarizer: immediate,
		Batch:      batch,
		Logger:     baseLogger,
	}, usecase.SummarizationConfig{
		ImmediateTimeout:   sc.ImmediateTimeout,
		ImmediatePerMinute: sc.ImmediatePerMinute,
		ImmediateBurst:     sc.ImmediateBurst,
		Retry:              retryCfg,
		BatchTimeout:       sc.BatchTimeout,
		Lookback:           sc.Lookback,
		MaxBatchSize:       sc.MaxBatchSize,
		MaxSubmitAttempts:  sc.MaxSubmitAttempts,
		MaxItemAttempts:    sc.MaxItemAttempts,
		ConflictRetries:    cc.ConflictRetries,
	})

	alerts := usecase.NewBreakingAlerts(a.stories, notifier, cc.ConflictRetries, baseLogger)
	a.sweeper = usecase.NewSweeper(a.stories, machine, alerts, cc.ConflictRetries, baseLogger)
	a.reader = usecase.NewStoryService(a.stories)
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Filter:        spam.New(cfg.Filter.BlockedPaths...),
		Resolver:      resolver,
		Summarization: a.summarization,
		Alerts:        alerts,
		Workers:       cfg.Ingest.Workers,
		Logger:        baseLogger,
	})

	baseLogger.Info("application ready",
		"storage", cfg.Storage.Driver,
		"summarizer", sc.Provider,
		"batch_summarizer", sc.BatchProvider,
		"notifier", cfg.Notifications.Driver)
	return a, nil
}

func (a *Application) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "postgres":
		pool, err := storage.OpenPostgres(ctx, a.cfg.Storage.DSN, a.cfg.Storage.MaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := storage.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		a.stories = storage.NewPostgresStoryRepository(pool)
		a.jobs = storage.NewPostgresBatchJobRepository(pool)
	default:
		store, err := storage.OpenBadger(a.cfg.Storage.BadgerPath, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.stories = storage.NewBadgerStoryRepository(store)
		a.jobs = storage.NewBadgerBatchJobRepository(store)
	}
	return nil
}

func (a *Application) redisClient() (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := stream.NewClient(a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *Application) immediateSummarizer() (ports.Summarizer, error) {
	p := a.cfg.Providers
	switch a.cfg.Summarization.Provider {
	case "anthropic":
		return llm.NewClaudeClient(p.Anthropic)
	case "chatgpt":
		return llm.NewChatGPTClient(p.ChatGPT), nil
	case "http":
		if p.HTTP.URL == "" {
			return nil, fmt.Errorf("http summarizer url is required")
		}
		return ml.NewClient(p.HTTP.URL, p.HTTP.APIKey), nil
	default:
		return nil, nil
	}
}

func (a *Application) batchSummarizer() (ports.BatchSummarizer, error) {
	p := a.cfg.Providers
	switch a.cfg.Summarization.BatchProvider {
	case "anthropic":
		return llm.NewClaudeClient(p.Anthropic)
	case "http":
		if p.HTTP.URL == "" {
			return nil, fmt.Errorf("http summarizer url is required")
		}
		return ml.NewClient(p.HTTP.URL, p.HTTP.APIKey), nil
	default:
		return nil, nil
	}
}

func (a *Application) notifier() (ports.Notifier, error) {
	n := a.cfg.Notifications
	switch n.Driver {
	case "redis":
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return stream.NewPublisher(client, n.Stream), nil
	case "telegram":
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram bot token and chat id are required")
		}
		return telegram.NewNotifier(n.Telegram.BotToken, n.Telegram.ChatID), nil
	default:
		return nil, nil
	}
}

// Serve consumes the article stream and runs the periodic sweeps until ctx
// is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	client, err := a.redisClient()
	if err != nil {
		return err
	}
	ic := a.cfg.Ingest
	consumer := stream.NewConsumer(client, stream.ConsumerConfig{
		Stream:        ic.Stream,
		Group:         ic.Group,
		Consumer:      ic.Consumer,
		BatchSize:     ic.BatchSize,
		Block:         ic.Block,
		MaxDeliveries: ic.MaxDeliveries,
		DeadLetter:    ic.DeadLetter,
	}, a.logger)

	jobs := usecase.NewScheduler(
		scheduler.NewCronScheduler(a.logger),
		a.sweeper,
		a.summarization,
		a.cfg.Status.SweepInterval,
		a.cfg.Summarization.BatchInterval,
		a.logger,
	)
	if err := jobs.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(gctx, func(ctx context.Context, articles []domain.Article) error {
			_, err := a.pipeline.IngestBatch(ctx, articles)
			return err
		})
	})

	if addr := a.cfg.Metrics.Address; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Info("metrics listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if stopErr := jobs.Stop(stopCtx); stopErr != nil {
		a.logger.Warn("scheduler stop", "error", stopErr)
	}
	return err
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// IngestReport counts ingestion outcomes.
type IngestReport map[domain.Outcome]int

// Ingest reads JSON-lines articles from r and runs them through the pipeline.
func (a *Application) Ingest(ctx context.Context, r io.Reader) (IngestReport, error) {
	report := IngestReport{}
	src := source.NewJSONLines(r, a.cfg.Ingest.Workers*8, a.logger)
	err := src.Consume(ctx, func(ctx context.Context, articles []domain.Article) error {
		results, err := a.pipeline.IngestBatch(ctx, articles)
		for _, res := range results {
			if res.Outcome != "" {
				report[res.Outcome]++
			}
		}
		return err
	})
	return report, err
}

// Sweep runs one status sweep.
func (a *Application) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	return a.sweeper.Sweep(ctx)
}

// RunBatch runs one batch summarization sweep.
func (a *Application) RunBatch(ctx context.Context) (usecase.BatchReport, error) {
	return a.summarization.RunBatch(ctx)
}

// Stories serves the read API.
func (a *Application) Stories(ctx context.Context, filter domain.StoryFilter) ([]usecase.StoryView, error) {
	return a.reader.List(ctx, filter)
}

// Close releases storage and connections in reverse order of acquisition.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
