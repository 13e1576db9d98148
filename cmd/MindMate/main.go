package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/MindMate/internal/api"
	"github.com/BTreeMap/MindMate/internal/config"
	"github.com/BTreeMap/MindMate/internal/genai"
	"github.com/BTreeMap/MindMate/internal/intervention"
	"github.com/BTreeMap/MindMate/internal/jobs"
	"github.com/BTreeMap/MindMate/internal/lockfile"
	"github.com/BTreeMap/MindMate/internal/metrics"
	"github.com/BTreeMap/MindMate/internal/models"
	"github.com/BTreeMap/MindMate/internal/modelstore"
	"github.com/BTreeMap/MindMate/internal/notify"
	"github.com/BTreeMap/MindMate/internal/pipeline"
	"github.com/BTreeMap/MindMate/internal/risk"
	"github.com/BTreeMap/MindMate/internal/scheduler"
	"github.com/BTreeMap/MindMate/internal/sentiment"
	"github.com/BTreeMap/MindMate/internal/store"
)

// Flags holds command line overrides of the environment configuration.
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	scanSchedule *string
	assessUser   *string
}

func main() {
	cfg, err := loadEnvironmentConfig()
	if err != nil {
		initializeLogger(slog.LevelDebug)
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	initializeLogger(cfg.SlogLevel())

	flags := parseCommandLineFlags(cfg)
	applyFlags(&cfg, flags)

	if err := ensureDirectoriesExist(cfg); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a one-off assessment does not need the instance lock
	if *flags.assessUser != "" {
		if err := assessOnce(ctx, cfg, *flags.assessUser); err != nil {
			slog.Error("Assessment failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir, cfg.APIAddr)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping MindMate with configured modules")
	if err := run(ctx, cfg); err != nil {
		slog.Error("MindMate failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("MindMate exited successfully")
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (config.Config, error) {
	return config.Load()
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(cfg config.Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", cfg.StateDir, "state directory for MindMate data (overrides $MINDMATE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", cfg.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)"),
		scanSchedule: flag.String("scan-schedule", cfg.ScanSchedule, "cron schedule for the periodic risk scan (overrides $SCAN_SCHEDULE)"),
		assessUser:   flag.String("assess", "", "assess one user, print the report as JSON and exit"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"scanSchedule", *flags.scanSchedule,
		"assess", *flags.assessUser)
	return flags
}

func applyFlags(cfg *config.Config, flags Flags) {
	cfg.StateDir = *flags.stateDir
	cfg.DatabaseURL = *flags.dbDSN
	cfg.OpenAIKey = *flags.openaiKey
	cfg.APIAddr = *flags.apiAddr
	cfg.ScanSchedule = *flags.scanSchedule
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(cfg config.Config) error {
	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(dsn)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	return nil
}

// sqlStore is a SQL backend: the main store plus the durable job queue.
type sqlStore interface {
	store.Store
	store.JobRepo
}

// openStore opens the SQL store for the configured DSN.
func openStore(cfg config.Config) (sqlStore, error) {
	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		pg, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	lite, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// modules are the long-lived collaborators built from configuration.
type modules struct {
	db       sqlStore
	st       store.Store
	pipe     *pipeline.Pipeline
	notifier notify.Notifier
	alerter  intervention.Alerter
	metrics  *metrics.Collector
}

// buildModules wires the collaborators. With queuedAlerts the pipeline's
// critical alerts go through the job queue, which only a running job runner
// drains; without it they are sent directly.
func buildModules(ctx context.Context, cfg config.Config, queuedAlerts bool) (*modules, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	m := &modules{db: db, st: db, metrics: metrics.New()}

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		c, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		awsCfg = &c
	}
	if cfg.InteractionBackend == config.InteractionBackendDynamoDB {
		slog.Info("Routing interaction records to DynamoDB", "table", cfg.DynamoDBTable)
		m.st = store.WithInteractionStore(db, store.NewDynamoInteractionStore(dynamodb.NewFromConfig(*awsCfg), cfg.DynamoDBTable))
	}

	gen := buildGenerator(cfg)
	scorer, scoring := buildScorer(ctx, cfg, awsCfg)
	m.notifier = buildNotifier(cfg)
	m.alerter = m.notifier
	if queuedAlerts {
		m.alerter = jobs.NewQueueNotifier(db)
	}

	p, err := pipeline.New(pipeline.Deps{
		Store:         m.st,
		Sentiment:     buildSentiment(cfg, awsCfg, gen),
		Scorer:        scorer,
		ScorerOutcome: scoring,
		Generator:     generatorOrNil(gen),
		Alerter:       m.alerter,
	},
		pipeline.WithWindowDays(cfg.WindowDays),
		pipeline.WithTimeout(cfg.CallTimeout),
		pipeline.WithObserver(m.metrics),
		pipeline.WithInterventions(cfg.Interventions),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	m.pipe = p
	return m, nil
}

func needsAWS(cfg config.Config) bool {
	return cfg.InteractionBackend == config.InteractionBackendDynamoDB ||
		cfg.SentimentProvider == config.SentimentComprehend ||
		cfg.ModelSource == config.ModelSourceS3
}

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	c, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return c, nil
}

func buildGenerator(cfg config.Config) *genai.Client {
	opts := []genai.Option{genai.WithTimeout(cfg.CallTimeout)}
	if cfg.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.OpenAIKey))
	}
	if cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAIModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Warn("GenAI client unavailable, interventions use fallback messages", "error", err)
		return nil
	}
	return client
}

// generatorOrNil keeps a nil *genai.Client from becoming a non-nil interface.
func generatorOrNil(c *genai.Client) intervention.Generator {
	if c == nil {
		return nil
	}
	return c
}

func buildSentiment(cfg config.Config, awsCfg *aws.Config, gen *genai.Client) sentiment.Classifier {
	switch cfg.SentimentProvider {
	case config.SentimentComprehend:
		slog.Info("Using AWS Comprehend for sentiment")
		return sentiment.NewComprehendClassifier(comprehend.NewFromConfig(*awsCfg))
	case config.SentimentOpenAI:
		if gen == nil {
			slog.Warn("SENTIMENT_PROVIDER=openai without an API key, sentiment features will be neutral")
			return nil
		}
		slog.Info("Using OpenAI for sentiment")
		return sentiment.NewGenAIClassifier(gen)
	default:
		return nil
	}
}

// buildScorer loads the classifier ensemble when a model source is configured.
// Missing artifacts fall back to the rule scorer with a degraded outcome.
func buildScorer(ctx context.Context, cfg config.Config, awsCfg *aws.Config) (risk.Scorer, models.Outcome) {
	opts := []risk.Option{risk.WithWeights(cfg.RiskWeights())}

	var loader modelstore.Loader
	switch cfg.ModelSource {
	case config.ModelSourceFile:
		dir := cfg.ModelDir
		if dir == "" {
			dir = filepath.Join(cfg.StateDir, "models")
		}
		loader = modelstore.NewFileLoader(dir)
	case config.ModelSourceS3:
		loader = modelstore.NewS3Loader(s3.NewFromConfig(*awsCfg), cfg.ModelBucket, cfg.ModelPrefix)
	}
	if loader != nil {
		loadCtx, cancel := context.WithTimeout(ctx, modelstore.DefaultLoadTimeout)
		defer cancel()
		reg := modelstore.Load(loadCtx, loader, modelstore.RandomForestName, modelstore.GradientBoostingName)
		opts = append(opts, risk.WithRegistry(reg))
	}
	return risk.NewScorer(opts...)
}

func buildNotifier(cfg config.Config) notify.Notifier {
	var out notify.Multi
	if cfg.ResendAPIKey != "" {
		email, err := notify.NewEmailNotifier(
			notify.WithResendAPIKey(cfg.ResendAPIKey),
			notify.WithEmailFrom(cfg.AlertEmailFrom, "MindMate"),
			notify.WithEmailTo(cfg.AlertEmailTo...),
		)
		if err != nil {
			slog.Warn("Email alerts disabled", "error", err)
		} else {
			out = append(out, email)
		}
	}
	if cfg.TwilioAccountSID != "" {
		sms, err := notify.NewSMSNotifier(
			notify.WithAccountSID(cfg.TwilioAccountSID),
			notify.WithAuthToken(cfg.TwilioAuthToken),
			notify.WithSMSFrom(cfg.TwilioFrom),
			notify.WithSMSTo(cfg.AlertSMSTo...),
		)
		if err != nil {
			slog.Warn("SMS alerts disabled", "error", err)
		} else {
			out = append(out, sms)
		}
	}
	if len(out) == 0 {
		slog.Warn("No alert channel configured, operator alerts go to the log")
		return notify.LogNotifier{}
	}
	return out
}

// run starts the job runner, the scan schedule and the HTTP server, and
// blocks until ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg config.Config) error {
	// the runner below delivers queued alerts, so they survive restarts
	m, err := buildModules(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer m.st.Close()

	runner := store.NewJobRunner(m.db,
		store.WithPollInterval(cfg.JobPollInterval),
		store.WithJobObserver(m.metrics.ObserveJob),
	)
	jobs.RegisterJobHandlers(runner, jobs.Deps{
		Repo:     m.db,
		Assessor: m.pipe,
		Store:    m.st,
		Alerter:  m.notifier,
	})
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("Failed to recover stale jobs", "error", err)
	}

	sched := scheduler.NewScheduler(time.UTC)
	defer sched.Stop()
	if err := jobs.NewScanner(m.db, cfg.WindowDays, nil).Start(sched, cfg.ScanSchedule); err != nil {
		return fmt.Errorf("failed to schedule risk scan: %w", err)
	}
	slog.Info("Next risk scan", "at", sched.Next())

	srv := api.NewServer(m.pipe, m.st,
		api.WithAddr(cfg.APIAddr),
		api.WithMetrics(m.metrics),
		api.WithJobRepo(m.db),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// assessOnce runs one assessment and prints the report. No job runner runs in
// this mode, so alerts are sent directly.
func assessOnce(ctx context.Context, cfg config.Config, userID string) error {
	m, err := buildModules(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer m.st.Close()

	rep, err := m.pipe.Assess(ctx, userID)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(rep); encErr != nil {
		return fmt.Errorf("failed to encode report: %w", encErr)
	}
	return err
}
