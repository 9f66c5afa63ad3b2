package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/batch"
	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/index"
	"github.com/spigell/cv-matcher/internal/logger"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/pdftext"
	"github.com/spigell/cv-matcher/internal/report"
)

const defaultReportName = "results.xlsx"

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Match every CV in a folder and write an Excel report",
	Run: func(cmd *cobra.Command, _ []string) {
		runBatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("folder", "f", "", "folder with CV pdf files (defaults to pdf-folder from the config)")
	batchCmd.Flags().StringP("output", "o", "", "output report path (defaults to results.xlsx inside the folder)")
}

// boundMatcher fixes the postings source and embedding index of a ranker so
// the batch pipeline only has to hand over CV text.
type boundMatcher struct {
	ranker *matcher.Ranker
	source string
	idx    *index.Index
}

func (b *boundMatcher) Match(ctx context.Context, cvText string) (*matcher.Match, error) {
	return b.ranker.Rank(ctx, cvText, b.source, b.idx)
}

func runBatch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	folder := cmd.Flag("folder").Value.String()
	if folder == "" {
		folder = config.PDFFolder
	}
	if folder == "" {
		logger.Fatal("a folder is required, pass --folder or set pdf-folder in the config")
	}

	output := cmd.Flag("output").Value.String()
	if output == "" {
		output = filepath.Join(folder, defaultReportName)
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

	files, err := listPDFs(folder)
	if err != nil {
		logger.Fatal("listing cv documents", zap.Error(err))
	}

	if len(files) == 0 {
		logger.Info("exiting", zap.String("reason", "no pdf files found"), zap.String("folder", folder))
		return
	}

	logger.Info("starting the batch run",
		zap.Int("documents", len(files)),
		zap.String("folder", folder),
		zap.String("output", output),
	)

	ranker := matcher.NewRanker(client, enc, matcher.RankerConfig{
		DetailColumns:  config.Columns.Detail,
		OpinionColumns: config.Columns.Opinion,
	}, logger)

	pipeline := batch.NewPipeline(
		pdftext.New(),
		matcher.NewSummarizer(client),
		&boundMatcher{ranker: ranker, source: config.Postings, idx: idx},
		logger,
		func(p batch.Progress) {
			logger.Info("progress",
				zap.Int("processed", p.Processed),
				zap.Int("total", p.Total),
				zap.String("estimated_time_remaining", formatDuration(p.Remaining)),
			)
		},
	)

	rep, err := pipeline.Run(ctx, files)
	if err != nil {
		logger.Fatal("batch run aborted", zap.Error(err))
	}

	if err := report.Write(output, rep); err != nil {
		logger.Fatal("writing the report", zap.Error(err))
	}

	logger.Info("processing complete",
		zap.String("time_taken", formatDuration(rep.Elapsed)),
		zap.String("output", output),
	)

	fmt.Printf("%s\n\nResults saved to\n%s\n", rep.Summary(), output)
}

// formatDuration renders a duration as whole minutes and seconds for the
// progress log.
func formatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds >= 60 {
		return fmt.Sprintf("%d minutes %d seconds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%d seconds", seconds)
}
