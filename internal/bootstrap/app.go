package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"review-backend/internal/analyses"
	"review-backend/internal/cache"
	"review-backend/internal/documents"
	"review-backend/internal/layout"
	"review-backend/internal/llm"
	openai "review-backend/internal/llm/openai"
	"review-backend/internal/pipeline"
	"review-backend/internal/reconcile"
	"review-backend/internal/shared/config"
	"review-backend/internal/shared/server"
	"review-backend/internal/shared/storage/db"
	"review-backend/internal/shared/storage/object"
	localstore "review-backend/internal/shared/storage/object/local"
	s3store "review-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Cache  *cache.Store

	DocumentsRepo    documents.DocumentsRepo
	AnalysesRepo     analyses.Repo
	DocumentsService *documents.Service
	Engine           *analyses.Engine
	Orchestrator     *pipeline.Orchestrator
	Parser           layout.Parser

	DocumentsHandler *documents.Handler
	ReviewHandler    *pipeline.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cacheStore, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Cache:  cacheStore,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		DocumentHandler: app.DocumentsHandler,
		ReviewHandler:   app.ReviewHandler,
		Parser:          app.Parser,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var docRepo documents.DocumentsRepo
	var analysisRepo analyses.Repo
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
	}

	docSvc := &documents.Service{
		Store: app.Store,
		Repo:  docRepo,
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	provider := "placeholder"
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		client, err := openai.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			return err
		}
		llmClient = client
		provider = "openai-compatible"
	} else {
		log.Printf("bootstrap: LLM_API_KEY empty; model calls will fail until configured")
	}

	engine := &analyses.Engine{
		Repo:     analysisRepo,
		LLM:      llmClient,
		Provider: provider,
		Model:    cfg.LLMModel,
		Retries:  cfg.LLMRetries,
	}

	var parser layout.Parser
	if strings.TrimSpace(cfg.ParserBaseURL) != "" {
		client, err := layout.NewClient(cfg.ParserBaseURL, cfg.ParserAPIToken, cfg.ParserTimeout)
		if err != nil {
			return err
		}
		parser = client
	}

	resolver := reconcile.NewResolver(cfg.SimilarityThreshold)
	orch := pipeline.NewOrchestrator(parser, engine, resolver, app.Cache, app.Store, docSvc, cfg.MaxParseInFlight, cfg.MaxModelInFlight)
	orch.ParseRetries = cfg.ParserRetries

	app.DocumentsRepo = docRepo
	app.AnalysesRepo = analysisRepo
	app.DocumentsService = docSvc
	app.Engine = engine
	app.Orchestrator = orch
	app.Parser = parser
	app.DocumentsHandler = documents.NewHandler(docSvc)
	app.ReviewHandler = pipeline.NewHandler(orch, docSvc, app.Cache)

	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
