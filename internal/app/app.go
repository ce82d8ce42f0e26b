package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/meddy-health/meddy/internal/config"
	"github.com/meddy-health/meddy/internal/core"
	db "github.com/meddy-health/meddy/internal/core/database"
	"github.com/meddy-health/meddy/internal/core/ingestion_engine"
	"github.com/meddy-health/meddy/internal/core/llm"
	objectclient "github.com/meddy-health/meddy/internal/core/object-client"
	"github.com/meddy-health/meddy/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Ingestor     ingestion_engine.Ingestor
	Server       *Server

	cfg     *config.Config
	closers []func() error
}

// NewApp connects to Postgres, builds the model providers and the optional
// attachment pipeline, and wires the HTTP server.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	log.Println("Database initialized and ready.")

	router, err := a.newRouter(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var embedder core.EmbeddingProvider
	if cfg.GeminiAPIKey != "" {
		e, err := llm.NewGeminiEmbedder(appCtx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, e.Close)
		embedder = e
	}

	var (
		objClient core.ObjectClient
		queue     services.AttachmentQueue
	)
	if cfg.StorageEnabled() {
		s3, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.ObjectClient = s3
		objClient = s3
		log.Println("Object client initialized and ready.")

		if embedder != nil {
			extractor := ingestion_engine.NewDocconvExtractor(false)
			ing := ingestion_engine.NewAttachmentIngestor(dbClient, s3, embedder, extractor, ingestion_engine.DefaultIngestConfig(cfg.EmbedDim))
			a.Ingestor = ing
			queue = ing
		} else {
			log.Println("GEMINI_API_KEY not set; uploads are stored but not indexed.")
		}
	} else {
		log.Println("AWS credentials or BUCKET_NAME not set; attachments disabled.")
	}

	toolbox := &services.Toolbox{
		DB:      dbClient,
		LLM:     router,
		Doctors: services.NewDoctorService(dbClient, nil),
	}
	if cfg.HuggingFaceAPIKey != "" {
		toolbox.Diagnoser = llm.NewMedLLaMAClient(cfg.MedLLaMAURL, cfg.HuggingFaceAPIKey)
	}
	if cfg.WeatherURL != "" {
		toolbox.Weather = llm.NewWeatherClient(cfg.WeatherURL)
	}
	if embedder != nil && queue != nil {
		toolbox.Embedder = embedder
	}

	chats := services.NewChatService(dbClient, router, toolbox, cfg.MaxSteps)
	attachments := services.NewAttachmentService(dbClient, objClient, cfg.BucketName, queue)
	if attachments.Enabled() {
		chats.UseChatFiles(attachments)
	}

	a.Server = NewServer(cfg, Services{
		Users:       services.NewUserService(dbClient),
		Chats:       chats,
		Documents:   services.NewDocumentService(dbClient),
		Attachments: attachments,
	})
	return a, nil
}

// newRouter registers a backend for every provider that has an API key.
func (a *App) newRouter(ctx context.Context) (*llm.Router, error) {
	r := &llm.Router{}
	if a.cfg.OpenAIAPIKey != "" {
		r.OpenAI = llm.NewOpenAIChat(a.cfg.OpenAIAPIKey)
	}
	if a.cfg.MistralAPIKey != "" {
		r.Mistral = llm.NewMistralChat(a.cfg.MistralAPIKey, a.cfg.MistralBaseURL)
	}
	if a.cfg.GeminiAPIKey != "" {
		g, err := llm.NewGeminiLLM(ctx, a.cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize gemini, %w", err)
		}
		a.closers = append(a.closers, g.Close)
		r.Gemini = g
	}
	if r.OpenAI == nil && r.Mistral == nil && r.Gemini == nil {
		return nil, errors.New("no model provider configured: set OPENAI_API_KEY, MISTRAL_API_KEY or GEMINI_API_KEY")
	}
	return r, nil
}

// StartWorkers launches the attachment ingestion workers when uploads are indexed.
func (a *App) StartWorkers(ctx context.Context) {
	if a.Ingestor == nil {
		return
	}
	a.Ingestor.Start(ctx, a.cfg.IngestWorkers)
	log.Printf("Attachment ingestion running with %d workers.", a.cfg.IngestWorkers)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}
