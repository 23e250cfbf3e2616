// Package bootstrap wires configuration, stores and services into runnable
// API and worker processes.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"triage_server/adapter/out/crm"
	"triage_server/adapter/out/graph"
	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/notify"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/rediscache"
	"triage_server/config"
	"triage_server/core/llm"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/draft"
	"triage_server/core/service/review"
	"triage_server/core/service/routing"
	"triage_server/core/service/triage"
	"triage_server/infra/database"
	"triage_server/internal/stream"
	"triage_server/pkg/logger"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Stores
	DraftRepo   out.DraftRepository
	Ledger      out.ProcessedReplyRepository
	Threads     out.ActiveThreadRepository
	SessionErrs out.SessionErrorRepository
	Archive     out.ReplyArchive
	Patterns    out.PatternStore
	ResultCache out.ResultCache

	// Outbound services
	Notifier out.HumanNotifier
	CRM      out.CRMPort

	// Messaging
	Stream          *stream.RedisStream
	MessageProducer out.MessageProducer

	// Core services
	LLMClient      *llm.Client
	Engine         *classification.Engine
	CategoryRouter *routing.CategoryRouter
	DraftService   *draft.Service
	ReviewWorkflow *review.Workflow
	TriageService  *triage.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	log := logger.Default()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Postgres (ledger)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	if err := database.EnsureSchema(ctx, db); err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = database.NewSQLX(db)

	// Redis (idempotency cache + stream queue)
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (drafts + reply archive)
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() {
		mongoClient.Disconnect(context.Background())
	})

	mongoDB := mongoClient.Database(cfg.MongoDBName)

	draftAdapter := mongodb.NewDraftAdapter(mongoDB)
	if err := draftAdapter.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to ensure draft indexes")
	}
	deps.DraftRepo = draftAdapter

	archiveAdapter := mongodb.NewReplyArchiveAdapter(mongoDB, 0)
	if err := archiveAdapter.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to ensure archive indexes")
	}
	deps.Archive = archiveAdapter

	// LLM client (classification + embeddings)
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		Timeout:        time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	// Neo4j (pattern corpus)
	driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Neo4j = driver
	cleanups = append(cleanups, func() {
		driver.Close(context.Background())
	})

	patternAdapter := graph.NewPatternAdapter(driver, "neo4j", deps.LLMClient)
	if err := patternAdapter.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("failed to ensure pattern indexes")
	}
	deps.Patterns = patternAdapter

	// Ledger adapters
	deps.Ledger = persistence.NewProcessedReplyAdapter(deps.SQLDB)
	deps.Threads = persistence.NewActiveThreadAdapter(deps.SQLDB)
	deps.SessionErrs = persistence.NewSessionErrorAdapter(deps.SQLDB)

	// Idempotency cache
	deps.ResultCache = rediscache.NewResultCache(redisClient, cfg.ResultCacheTTL())

	// Messaging
	deps.Stream = stream.NewRedisStream(redisClient, cfg.ConsumerGroup)
	deps.MessageProducer = messaging.NewStreamProducer(deps.Stream)

	// Outbound services
	deps.Notifier = notify.NewChatOpsAdapter(cfg.ChatOpsURL, cfg.ChatOpsToken, log)
	deps.CRM = crm.NewCRMAdapter(cfg.CRMBaseURL, cfg.CRMAPIKey, log)

	// Core services
	routingCfg := &routing.Config{
		Tier1MinConfidence:         cfg.Tier1MinConfidence,
		Tier2MinConfidence:         cfg.Tier2MinConfidence,
		NegativeSentimentThreshold: cfg.NegativeSentimentThreshold,
		HighValueDealThreshold:     cfg.HighValueDealThreshold,
		ConfidenceFloor:            cfg.ConfidenceFloor,
	}

	deps.Engine = classification.NewEngine(deps.LLMClient, log)
	deps.CategoryRouter = routing.NewCategoryRouter(deps.LLMClient, routingCfg, log)
	deps.DraftService = draft.NewService(deps.DraftRepo, cfg.DraftTimeout(), log)
	deps.ReviewWorkflow = review.NewWorkflow(
		deps.Patterns, deps.Notifier, deps.CRM, deps.SessionErrs, cfg.ReviewChannel, log)

	deps.TriageService = triage.NewService(triage.Deps{
		Engine:   deps.Engine,
		Category: deps.CategoryRouter,
		Drafts:   deps.DraftService,
		Review:   deps.ReviewWorkflow,
		Cache:    deps.ResultCache,
		Ledger:   deps.Ledger,
		Threads:  deps.Threads,
		SessErrs: deps.SessionErrs,
		Archive:  deps.Archive,
		Notifier: deps.Notifier,
		CRM:      deps.CRM,
	}, triage.Config{
		Routing:           routingCfg,
		DraftChannel:      cfg.DraftChannel,
		EscalationChannel: cfg.EscalationChannel,
	}, log)

	return deps, cleanup, nil
}
