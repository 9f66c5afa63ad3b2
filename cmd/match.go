package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/pdftext"
)

var matchCmd = &cobra.Command{
	Use:   "match [pdf]",
	Short: "Match a single CV against the job postings",
	Long: "Extracts and summarizes the CV text, predicts a job descriptor and prints " +
		"the best-matching posting with a generated opinion. Without an argument a " +
		"PDF is picked interactively from the configured folder.",
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMatch(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("text", "t", "", "use the given CV text directly instead of extracting a PDF")
}

func runMatch(cmd *cobra.Command, args []string) {
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

	client, err := newGeminiClient(config, apiKey, logger)
	if err != nil {
		logger.Fatal("creating the gemini client", zap.Error(err))
	}

	enc, err := encoder.NewGemini(ctx, apiKey, encoderModel(config))
	if err != nil {
		logger.Fatal("creating the embeddings encoder", zap.Error(err))
	}

	idx, err := loadOrBuildIndex(ctx, config, enc, logger)
	if err != nil {
		logger.Fatal("loading the embedding index", zap.Error(err))
	}

	cvText, err := resolveCVText(ctx, cmd, args, config, client, logger)
	if err != nil {
		logger.Fatal("preparing cv text", zap.Error(err))
	}

	ranker := matcher.NewRanker(client, enc, matcher.RankerConfig{
		DetailColumns:  config.Columns.Detail,
		OpinionColumns: config.Columns.Opinion,
	}, logger)

	match, err := ranker.Rank(ctx, cvText, config.Postings, idx)
	if err != nil {
		logger.Fatal("matching failed", zap.Error(err))
	}

	logger.Info("best match selected",
		zap.Int("posting_row", match.Row),
		zap.Float64("cosine_similarity", match.Score),
	)

	fmt.Println(match.Details)
}

// resolveCVText obtains the CV text for matching: the --text flag verbatim,
// or the summarized extraction of the chosen PDF.
func resolveCVText(ctx context.Context, cmd *cobra.Command, args []string, config *Config, client matcher.Generator, logger *zap.Logger) (string, error) {
	if text := strings.TrimSpace(cmd.Flag("text").Value.String()); text != "" {
		return text, nil
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		chosen, err := pickPDF(config.PDFFolder)
		if err != nil {
			return "", err
		}
		path = chosen
	}

	extracted, err := pdftext.New().ExtractText(path)
	if err != nil {
		return "", err
	}

	logger.Info("summarizing the cv", zap.String("file", filepath.Base(path)))

	summary, err := matcher.NewSummarizer(client).Summarize(ctx, extracted)
	if err != nil {
		return "", err
	}

	return summary, nil
}

func pickPDF(folder string) (string, error) {
	files, err := listPDFs(folder)
	if err != nil {
		return "", err
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no pdf files found in %q", folder)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}

	prompt := promptui.Select{
		Label: "Choose a CV and press ENTER",
		Items: names,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", err
	}

	return files[i], nil
}

func listPDFs(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("reading folder %q: %w", folder, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, filepath.Join(folder, entry.Name()))
		}
	}

	return files, nil
}
