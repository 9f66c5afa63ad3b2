package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/gemini"
	"github.com/spigell/cv-matcher/internal/index"
	"github.com/spigell/cv-matcher/internal/postings"
	"github.com/spigell/cv-matcher/internal/secrets"
)

const (
	app = "cv-matcher"
)

type Config struct {
	// Postings is the path to the job postings workbook.
	Postings string `mapstructure:"postings"`
	// Embeddings is the path to the embedding index cache artifact.
	Embeddings string `mapstructure:"embeddings"`
	// PDFFolder is the default folder with CV documents.
	PDFFolder string         `mapstructure:"pdf-folder"`
	Columns   *ColumnsConfig `mapstructure:"columns"`
	Gemini    *GeminiConfig  `mapstructure:"gemini"`
	Encoder   *EncoderConfig `mapstructure:"encoder"`
}

// ColumnsConfig names the three independently configured column sets of the
// postings workbook.
type ColumnsConfig struct {
	Embeddings []string `mapstructure:"embeddings"`
	Detail     []string `mapstructure:"detail"`
	Opinion    []string `mapstructure:"opinion"`
}

type GeminiConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api-key"`
	APIKeyFile  string        `mapstructure:"api-key-file"`
	Temperature float64       `mapstructure:"temperature"`
	MaxRetries  int           `mapstructure:"max-retries"`
	RetryDelay  time.Duration `mapstructure:"retry-delay"`
}

type EncoderConfig struct {
	Model string `mapstructure:"model"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-matcher matches CV documents against a corpus of job postings",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on the environment")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.Columns == nil {
		return nil, errors.New("the columns section is required (embeddings, detail, opinion sets)")
	}

	if config.Gemini == nil {
		return nil, errors.New("the gemini section is required")
	}

	return config, nil
}

// encoderModel returns the configured embeddings model, empty meaning the
// encoder's default.
func encoderModel(config *Config) string {
	if config.Encoder == nil {
		return ""
	}
	return config.Encoder.Model
}

func resolveAPIKey(config *Config) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.Gemini.APIKey,
		File:  config.Gemini.APIKeyFile,
	})
}

func newGeminiClient(config *Config, apiKey string, logger *zap.Logger) (*gemini.Client, error) {
	return gemini.NewClient(gemini.Config{
		Endpoint:    config.Gemini.Endpoint,
		APIKey:      apiKey,
		Temperature: config.Gemini.Temperature,
		MaxRetries:  config.Gemini.MaxRetries,
		RetryDelay:  config.Gemini.RetryDelay,
	}, logger)
}

// loadOrBuildIndex returns the cached embedding index, computing and
// persisting it first when the cache does not exist yet. A cache produced by
// a different encoder is a hard error: rebuild it with the index command.
func loadOrBuildIndex(ctx context.Context, config *Config, enc encoder.Encoder, logger *zap.Logger) (*index.Index, error) {
	idx, err := index.Load(config.Embeddings)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("embedding index cache not found, calculating embeddings",
			zap.String("postings", config.Postings),
			zap.String("cache", config.Embeddings),
		)
		return buildIndex(ctx, config, enc, logger)
	}
	if err != nil {
		return nil, err
	}

	if err := idx.CheckVersion(enc); err != nil {
		return nil, err
	}

	return idx, nil
}

func buildIndex(ctx context.Context, config *Config, enc encoder.Encoder, logger *zap.Logger) (*index.Index, error) {
	table, err := postings.Load(config.Postings)
	if err != nil {
		return nil, err
	}

	idx, err := index.Build(ctx, table, config.Columns.Embeddings, enc)
	if err != nil {
		return nil, err
	}

	if err := idx.Save(config.Embeddings); err != nil {
		return nil, err
	}

	logger.Info("embedding index calculated",
		zap.Int("postings", idx.Len()),
		zap.String("encoder", idx.EncoderVersion),
		zap.String("cache", config.Embeddings),
	)

	return idx, nil
}
