package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/adapter"
	"github.com/m-mizutani/lectern/pkg/embedding"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/metrics"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/repository"
	"github.com/m-mizutani/lectern/pkg/service/analytics"
	"github.com/m-mizutani/lectern/pkg/service/archive"
	"github.com/m-mizutani/lectern/pkg/synth"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/m-mizutani/lectern/pkg/usecase/ingest"
	"github.com/m-mizutani/lectern/pkg/usecase/retrieval"
	"github.com/m-mizutani/lectern/pkg/usecase/voice"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	backendMemory    = "memory"
	backendFirestore = "firestore"
	backendPostgres  = "postgres"

	encoderHash   = "hash"
	encoderGemini = "gemini"

	synthTemplate = "template"
	synthGemini   = "gemini"
	synthClaude   = "claude"
	synthOpenAI   = "openai"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	sessionBackend string
	indexBackend   string
	project        string
	database       string
	postgresDSN    string
	dimension      int64

	// Encoder
	encoder      string
	tokenCeiling int64

	// Adapters
	synthesizer     string
	anthropicAPIKey string
	openaiAPIKey    string
	geminiProject   string
	geminiLocation  string

	// Chat
	retrievalLimit   int64
	retrievalTimeout time.Duration
	rejectClosed     bool
	policyDir        string
	corpus           string

	// Sinks
	bigqueryDataset string
	bigqueryTable   string
	archiveBucket   string

	gemini    *adapter.GeminiClient
	firestore *repository.Firestore
	closers   []func()

	// bigqueryClient replaces adapter.NewBigQuery when set
	bigqueryClient func(ctx context.Context, projectID string) (adapter.BigQuery, error)
}

// logFlags returns flags for logger configuration with destination config
func logFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LECTERN_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("LECTERN_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// storeFlags returns flags selecting the session and passage backends
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "session-backend",
			Usage:       "Session store (memory, firestore, postgres)",
			Value:       backendMemory,
			Sources:     cli.EnvVars("LECTERN_SESSION_BACKEND"),
			Destination: &cfg.sessionBackend,
		},
		&cli.StringFlag{
			Name:        "index-backend",
			Usage:       "Vector index (memory, firestore)",
			Value:       backendMemory,
			Sources:     cli.EnvVars("LECTERN_INDEX_BACKEND"),
			Destination: &cfg.indexBackend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string",
			Sources:     cli.EnvVars("LECTERN_POSTGRES_DSN", "DATABASE_URL"),
			Destination: &cfg.postgresDSN,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension",
			Value:       model.DefaultDimension,
			Sources:     cli.EnvVars("LECTERN_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "encoder",
			Usage:       "Embedding encoder (hash, gemini)",
			Value:       encoderHash,
			Sources:     cli.EnvVars("LECTERN_ENCODER"),
			Destination: &cfg.encoder,
		},
		&cli.IntFlag{
			Name:        "token-ceiling",
			Usage:       "Maximum number of tokens accepted by the encoder",
			Value:       embedding.DefaultTokenCeiling,
			Sources:     cli.EnvVars("LECTERN_TOKEN_CEILING"),
			Destination: &cfg.tokenCeiling,
		},
		&cli.StringFlag{
			Name:        "corpus",
			Usage:       "YAML corpus indexed at startup",
			Sources:     cli.EnvVars("LECTERN_CORPUS"),
			Destination: &cfg.corpus,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "synthesizer",
			Usage:       "Answer generator (template, gemini, claude, openai)",
			Value:       synthTemplate,
			Sources:     cli.EnvVars("LECTERN_SYNTHESIZER"),
			Destination: &cfg.synthesizer,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// chatFlags returns flags for the chat orchestrator and its sinks
func chatFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "retrieval-limit",
			Usage:       "Number of passages retrieved per chat turn",
			Value:       retrieval.DefaultLimit,
			Sources:     cli.EnvVars("LECTERN_RETRIEVAL_LIMIT"),
			Destination: &cfg.retrievalLimit,
		},
		&cli.DurationFlag{
			Name:        "retrieval-timeout",
			Usage:       "Timeout of one retrieval round trip",
			Value:       retrieval.DefaultTimeout,
			Sources:     cli.EnvVars("LECTERN_RETRIEVAL_TIMEOUT"),
			Destination: &cfg.retrievalTimeout,
		},
		&cli.BoolFlag{
			Name:        "reject-closed",
			Usage:       "Reject chat and voice turns on closed sessions",
			Sources:     cli.EnvVars("LECTERN_REJECT_CLOSED"),
			Destination: &cfg.rejectClosed,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies for voice command classification",
			Sources:     cli.EnvVars("LECTERN_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset receiving turn records",
			Sources:     cli.EnvVars("LECTERN_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table receiving turn records",
			Value:       "chat_turns",
			Sources:     cli.EnvVars("LECTERN_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket for transcripts of closed sessions",
			Sources:     cli.EnvVars("LECTERN_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
	}
}

// allFlags returns every flag group used by commands that build the full stack
func allFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, logFlags(cfg)...)
	flags = append(flags, storeFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, chatFlags(cfg)...)
	return flags
}

// setup installs the configured logger. Logs go to stderr so that command
// output and the MCP stdio stream stay clean.
func (cfg *config) setup(ctx context.Context) context.Context {
	logger := logging.NewWithFormat(cfg.logLevel, logging.Format(cfg.logFormat), os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// close releases clients in reverse creation order
func (cfg *config) close() {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		cfg.closers[i]()
	}
	cfg.closers = nil
}

func (cfg *config) newFirestore(ctx context.Context) (*repository.Firestore, error) {
	if cfg.firestore != nil {
		return cfg.firestore, nil
	}
	if cfg.project == "" {
		return nil, goerr.New("project is required for firestore backend")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required for firestore backend")
	}

	fs, err := repository.NewFirestore(ctx, cfg.project, cfg.database, repository.WithDimension(int(cfg.dimension)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore repository")
	}
	cfg.firestore = fs
	cfg.closers = append(cfg.closers, func() { _ = fs.Close() })
	return fs, nil
}

// newSessionStore creates the configured session store
func (cfg *config) newSessionStore(ctx context.Context) (interfaces.SessionStore, error) {
	switch cfg.sessionBackend {
	case backendMemory:
		return repository.NewMemorySessions(), nil

	case backendFirestore:
		return cfg.newFirestore(ctx)

	case backendPostgres:
		if cfg.postgresDSN == "" {
			return nil, goerr.New("postgres-dsn is required for postgres backend")
		}
		pg, err := repository.NewPostgres(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, err
		}
		cfg.closers = append(cfg.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil

	default:
		return nil, goerr.New("unknown session backend", goerr.V("backend", cfg.sessionBackend))
	}
}

// newIndex creates the configured vector index
func (cfg *config) newIndex(ctx context.Context) (interfaces.VectorIndex, error) {
	switch cfg.indexBackend {
	case backendMemory:
		return repository.NewMemoryIndex(int(cfg.dimension)), nil
	case backendFirestore:
		return cfg.newFirestore(ctx)
	default:
		return nil, goerr.New("unknown index backend", goerr.V("backend", cfg.indexBackend))
	}
}

// newGemini creates a new Gemini adapter instance, shared by the encoder and synthesizer
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
	if err != nil {
		return nil, err
	}
	cfg.gemini = client
	return client, nil
}

// newEncoder creates the configured embedding encoder
func (cfg *config) newEncoder(ctx context.Context) (interfaces.Encoder, error) {
	opts := []embedding.Option{embedding.WithTokenCeiling(int(cfg.tokenCeiling))}

	switch cfg.encoder {
	case encoderHash:
		return embedding.NewHashEncoder(int(cfg.dimension), opts...)

	case encoderGemini:
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		return embedding.NewGeminiEncoder(client, int(cfg.dimension), opts...)

	default:
		return nil, goerr.New("unknown encoder", goerr.V("encoder", cfg.encoder))
	}
}

// newSynthesizer creates the configured answer generator
func (cfg *config) newSynthesizer(ctx context.Context) (interfaces.Synthesizer, error) {
	switch cfg.synthesizer {
	case synthTemplate:
		return synth.NewTemplate(), nil

	case synthGemini:
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		return synth.NewGemini(client), nil

	case synthClaude:
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		return synth.NewLLM(adapter.NewClaude(cfg.anthropicAPIKey), synthClaude), nil

	case synthOpenAI:
		if cfg.openaiAPIKey == "" {
			return nil, goerr.New("openai-api-key is required")
		}
		return synth.NewLLM(adapter.NewOpenAI(cfg.openaiAPIKey), synthOpenAI), nil

	default:
		return nil, goerr.New("unknown synthesizer", goerr.V("synthesizer", cfg.synthesizer))
	}
}

// newClassifier creates the voice command classifier. Without a policy
// directory the keyword rules are used directly.
func (cfg *config) newClassifier(ctx context.Context) (interfaces.IntentClassifier, error) {
	keyword := voice.NewKeywordClassifier()
	if cfg.policyDir == "" {
		return keyword, nil
	}
	return voice.NewPolicyClassifier(ctx, cfg.policyDir, keyword)
}

// newRetrieval creates the encoder, index and retrieval engine, indexing
// the startup corpus when one is configured
func (cfg *config) newRetrieval(ctx context.Context, m *metrics.Metrics) (*retrieval.Engine, *ingest.UseCase, error) {
	encoder, err := cfg.newEncoder(ctx)
	if err != nil {
		return nil, nil, err
	}
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, nil, err
	}

	indexer := ingest.New(encoder, index)
	if cfg.corpus != "" {
		docs, err := ingest.LoadCorpus(cfg.corpus)
		if err != nil {
			return nil, nil, err
		}
		ids, err := indexer.Ingest(ctx, docs)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to index startup corpus")
		}
		logging.From(ctx).Info("corpus indexed", "path", cfg.corpus, "passages", len(ids))
	}

	engine := retrieval.New(encoder, index,
		retrieval.WithTimeout(cfg.retrievalTimeout),
		retrieval.WithDefaultLimit(int(cfg.retrievalLimit)),
		retrieval.WithMetrics(m),
	)
	return engine, indexer, nil
}

// newChat wires the chat orchestrator with every configured dependency
func (cfg *config) newChat(ctx context.Context, m *metrics.Metrics) (*chat.UseCase, *retrieval.Engine, error) {
	sessions, err := cfg.newSessionStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	engine, _, err := cfg.newRetrieval(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	synthesizer, err := cfg.newSynthesizer(ctx)
	if err != nil {
		return nil, nil, err
	}
	classifier, err := cfg.newClassifier(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []chat.Option{
		chat.WithRetrievalLimit(int(cfg.retrievalLimit)),
		chat.WithMetrics(m),
	}
	if cfg.rejectClosed {
		opts = append(opts, chat.WithRejectClosedSession())
	}

	if cfg.bigqueryDataset != "" {
		recorder, err := cfg.newRecorder(ctx)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, chat.WithTurnRecorder(recorder))
	}

	if cfg.archiveBucket != "" {
		a, err := cfg.newArchive(ctx)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, chat.WithTranscriptArchive(a))
	}

	return chat.New(sessions, engine, synthesizer, classifier, opts...), engine, nil
}

func (cfg *config) newRecorder(ctx context.Context) (*analytics.Recorder, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required for bigquery recording")
	}
	newClient := adapter.NewBigQuery
	if cfg.bigqueryClient != nil {
		newClient = cfg.bigqueryClient
	}
	client, err := newClient(ctx, cfg.project)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create bigquery client")
	}
	cfg.closers = append(cfg.closers, func() { _ = client.Close() })

	recorder := analytics.New(client, cfg.bigqueryDataset, cfg.bigqueryTable)
	if err := recorder.Setup(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to set up turn table")
	}
	return recorder, nil
}

func (cfg *config) newArchive(ctx context.Context) (*archive.Archive, error) {
	storage, err := adapter.NewStorage(ctx, cfg.archiveBucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	cfg.closers = append(cfg.closers, func() { _ = storage.Close() })
	return archive.New(storage), nil
}
