package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/api"
	"github.com/BTreeMap/SleepyStorybook/internal/conversation"
	"github.com/BTreeMap/SleepyStorybook/internal/flow"
	"github.com/BTreeMap/SleepyStorybook/internal/genai"
	"github.com/BTreeMap/SleepyStorybook/internal/lockfile"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/prompts"
	"github.com/BTreeMap/SleepyStorybook/internal/store"
	"github.com/BTreeMap/SleepyStorybook/internal/story"
	"github.com/BTreeMap/SleepyStorybook/internal/tts"
	"github.com/BTreeMap/SleepyStorybook/internal/twiliowhatsapp"
	"github.com/BTreeMap/SleepyStorybook/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SleepyStorybook state data
	DefaultStateDir = "/var/lib/sleepystorybook"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "sleepystorybook.db"
)

var logLevel = new(slog.LevelVar)

func main() {
	initializeLogger()

	if err := run(); err != nil {
		slog.Error("SleepyStorybook failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SleepyStorybook exited successfully")
}

func run() error {
	config := loadEnvironmentConfig()
	logLevel.Set(util.ParseLogLevel(config.LogLevel, slog.LevelDebug))

	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	if isFileBackedDSN(*flags.dbDSN) {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	server, err := buildServer(config, flags, st)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SleepyStorybook with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_type", store.DetectDSNType(*flags.dbDSN),
		"api_addr", *flags.apiAddr, "max_iterations", *flags.maxIterations)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir                 string
	DatabaseURL              string
	APIAddr                  string
	LLMAPIKey                string
	LLMBaseURL               string
	PromptsFile              string
	LogLevel                 string
	CORSOrigins              []string
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	MaxIterations            int
	TTSEnabled               bool
	TTSModel                 string
	TTSVoice                 string
	OpenAIKey                string
	ShareEnabled             bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	llmAPIKey     *string
	llmBaseURL    *string
	promptsFile   *string
	maxIterations *int
	ttsEnabled    *bool
	shareEnabled  *bool
}

// initializeLogger sets up structured logging; the level is adjusted once configuration is loaded
func initializeLogger() {
	logLevel.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:                 os.Getenv("SLEEPY_STATE_DIR"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		APIAddr:                  os.Getenv("API_ADDR"),
		LLMAPIKey:                os.Getenv("LLM_API_KEY"),
		LLMBaseURL:               os.Getenv("LLM_BASE_URL"),
		PromptsFile:              os.Getenv("PROMPTS_FILE"),
		LogLevel:                 os.Getenv("LOG_LEVEL"),
		CORSOrigins:              util.ParseListEnv("CORS_ORIGINS", []string{"*"}),
		MaxConcurrentGenerations: util.ParseIntEnv("MAX_CONCURRENT_GENERATIONS", api.DefaultMaxConcurrentGenerations),
		GenerationTimeout:        time.Duration(util.ParseIntEnv("GENERATION_TIMEOUT_SECONDS", int(api.DefaultGenerationTimeout/time.Second))) * time.Second,
		MaxIterations:            util.ParseIntEnv("STORY_MAX_ITERATIONS", flow.DefaultMaxIterations),
		TTSEnabled:               util.ParseBoolEnv("TTS_ENABLED", false),
		TTSModel:                 os.Getenv("TTS_MODEL"),
		TTSVoice:                 os.Getenv("TTS_VOICE"),
		OpenAIKey:                os.Getenv("OPENAI_API_KEY"),
		ShareEnabled:             util.ParseBoolEnv("SHARE_ENABLED", false),
	}

	if config.LLMAPIKey == "" {
		config.LLMAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SLEEPY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("SLEEPY_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"SLEEPY_STATE_DIR", config.StateDir,
		"DATABASE_URL_TYPE", store.DetectDSNType(config.DatabaseURL),
		"API_ADDR", config.APIAddr,
		"LLM_API_KEY_SET", config.LLMAPIKey != "",
		"LLM_BASE_URL", config.LLMBaseURL,
		"PROMPTS_FILE", config.PromptsFile,
		"CORS_ORIGINS", strings.Join(config.CORSOrigins, ","),
		"MAX_CONCURRENT_GENERATIONS", config.MaxConcurrentGenerations,
		"GENERATION_TIMEOUT", config.GenerationTimeout,
		"TTS_ENABLED", config.TTSEnabled,
		"SHARE_ENABLED", config.ShareEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	return parseFlagSet(flag.CommandLine, os.Args[1:], config)
}

func parseFlagSet(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:      fs.String("state-dir", config.StateDir, "state directory for SleepyStorybook data (overrides $SLEEPY_STATE_DIR)"),
		dbDSN:         fs.String("db-dsn", config.DatabaseURL, "story store DSN: memory, a .json file, a SQLite path or a Postgres URL (overrides $DATABASE_URL)"),
		apiAddr:       fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		llmAPIKey:     fs.String("llm-api-key", config.LLMAPIKey, "LLM API key (overrides $LLM_API_KEY or $GROQ_API_KEY)"),
		llmBaseURL:    fs.String("llm-base-url", config.LLMBaseURL, "OpenAI-compatible LLM endpoint (overrides $LLM_BASE_URL)"),
		promptsFile:   fs.String("prompts-file", config.PromptsFile, "YAML file overriding prompt templates (overrides $PROMPTS_FILE)"),
		maxIterations: fs.Int("max-iterations", config.MaxIterations, "default refine budget per story (overrides $STORY_MAX_ITERATIONS)"),
		ttsEnabled:    fs.Bool("tts", config.TTSEnabled, "enable text-to-speech (overrides $TTS_ENABLED)"),
		shareEnabled:  fs.Bool("share", config.ShareEnabled, "enable WhatsApp story sharing (overrides $SHARE_ENABLED)"),
	}

	if err := fs.Parse(args); err != nil {
		slog.Warn("failed to parse flags", "error", err)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_type", store.DetectDSNType(*flags.dbDSN),
		"apiAddr", *flags.apiAddr,
		"llmKeySet", *flags.llmAPIKey != "",
		"promptsFile", *flags.promptsFile,
		"maxIterations", *flags.maxIterations,
		"tts", *flags.ttsEnabled,
		"share", *flags.shareEnabled)

	// Follow a changed state directory when the DSN is still the default one
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// isFileBackedDSN reports whether the store keeps its data in a local file.
func isFileBackedDSN(dsn string) bool {
	switch store.DetectDSNType(dsn) {
	case "sqlite3", "json":
		return true
	default:
		return false
	}
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !isFileBackedDSN(*flags.dbDSN) {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based store", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.llmAPIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.llmAPIKey))
	}
	if *flags.llmBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.llmBaseURL))
	}
	return genaiOpts
}

// buildRoleConfig reads the candidate list and sampling settings for a role.
// LLM_MODELS_<ROLE> wins over LLM_MODELS; the GROQ_MODEL names are accepted as fallbacks.
func buildRoleConfig(role string) genai.RoleConfig {
	cfg := genai.DefaultRoleConfig(role)
	upper := strings.ToUpper(role)
	shared := util.ParseListEnv("LLM_MODELS", util.ParseListEnv("GROQ_MODEL", nil))
	if candidates := util.ParseListEnv("LLM_MODELS_"+upper, util.ParseListEnv("GROQ_MODEL_"+upper, shared)); len(candidates) > 0 {
		cfg.Candidates = candidates
	}
	cfg.Temperature = util.ParseFloatEnv(upper+"_TEMPERATURE", cfg.Temperature)
	cfg.MaxTokens = util.ParseIntEnv(upper+"_MAX_TOKENS", cfg.MaxTokens)
	return cfg
}

// buildLengthTable applies STORY_WORDS_* and STORY_PARAGRAPHS_* overrides to the defaults.
func buildLengthTable() models.LengthTable {
	table := models.DefaultLengthTable()
	for _, class := range []models.LengthClass{models.LengthShort, models.LengthMedium, models.LengthLong} {
		spec := table[class]
		upper := strings.ToUpper(string(class))
		spec.MinWords, spec.MaxWords = util.ParseRangeEnv("STORY_WORDS_"+upper, spec.MinWords, spec.MaxWords)
		if p := util.ParseIntEnv("STORY_PARAGRAPHS_"+upper, spec.Paragraphs); p > 0 {
			spec.Paragraphs = p
		}
		table[class] = spec
	}
	return table
}

func buildAPIOptions(config Config, flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithCORSOrigins(config.CORSOrigins),
		api.WithMaxConcurrentGenerations(config.MaxConcurrentGenerations),
		api.WithGenerationTimeout(config.GenerationTimeout),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

func buildTTSOptions(config Config) []tts.Option {
	var ttsOpts []tts.Option
	if config.OpenAIKey != "" {
		ttsOpts = append(ttsOpts, tts.WithAPIKey(config.OpenAIKey))
	}
	if config.TTSModel != "" {
		ttsOpts = append(ttsOpts, tts.WithModel(config.TTSModel))
	}
	if config.TTSVoice != "" {
		ttsOpts = append(ttsOpts, tts.WithVoice(config.TTSVoice))
	}
	return ttsOpts
}

// buildServer wires the model roles, the workflow and the router into the API server.
func buildServer(config Config, flags Flags, st store.Store) (*api.Server, error) {
	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	invokers := make(map[string]*genai.Invoker, 3)
	for _, role := range []string{genai.RoleStoryteller, genai.RoleJudge, genai.RoleConversation} {
		cfg := buildRoleConfig(role)
		inv, err := genai.NewInvoker(client, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s invoker: %w", role, err)
		}
		slog.Debug("Invoker configured", "role", inv.Role(), "candidates", strings.Join(inv.Candidates(), ","),
			"temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens)
		invokers[role] = inv
	}

	set, err := prompts.Load(*flags.promptsFile)
	if err != nil {
		return nil, err
	}

	lengths := buildLengthTable()
	generator := story.NewGenerator(invokers[genai.RoleStoryteller], set, story.WithLengthTable(lengths))
	critic := story.NewCritic(invokers[genai.RoleJudge], set, story.WithLengthTable(lengths))
	workflow := flow.NewWorkflow(generator, critic, flow.WithLengthTable(lengths), flow.WithMaxIterations(*flags.maxIterations))
	slog.Debug("Workflow configured", "max_iterations", workflow.MaxIterations())
	router := conversation.NewRouter(invokers[genai.RoleConversation], set)

	apiOpts := buildAPIOptions(config, flags)
	if *flags.ttsEnabled {
		synth, err := tts.NewOpenAISpeech(buildTTSOptions(config)...)
		if err != nil {
			slog.Warn("Text-to-speech disabled", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithSynthesizer(synth))
		}
	}
	if *flags.shareEnabled {
		sender, err := twiliowhatsapp.NewClient()
		if err != nil {
			slog.Warn("Story sharing disabled", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithSender(sender))
		}
	}

	return api.NewServer(st, router, workflow, apiOpts...), nil
}
