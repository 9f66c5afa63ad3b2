package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/logger"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute the embedding index for the job postings workbook",
	Long: "Reads the postings workbook, encodes the configured embedding columns of " +
		"every row and writes the vectors to the cache artifact, overwriting any " +
		"previous index.",
	Run: func(_ *cobra.Command, _ []string) {
		runIndex()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	apiKey, err := resolveAPIKey(config)
	if err != nil {
		logger.Fatal("loading gemini api key", zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY or the gemini.api-key-file config key"),
		)
	}

	enc, err := encoder.NewGemini(ctx, apiKey, encoderModel(config))
	if err != nil {
		logger.Fatal("creating the embeddings encoder", zap.Error(err))
	}

	if _, err := buildIndex(ctx, config, enc, logger); err != nil {
		logger.Fatal("building the embedding index", zap.Error(err))
	}
}
