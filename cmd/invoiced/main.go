package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/allowlist"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/async"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/document"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/export"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/llm"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/llm/openai"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/ocr"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/pipeline"
	repo "github.com/tobi-adeyemi/invoice-pipeline/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir     = flag.String("dir", "", "directory to process invoices from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		workers = flag.Int("workers", 4, "concurrent pipeline workers")
		vendors = flag.String("vendors", "", "comma-separated vendor names to seed the allow-list")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.Driver = repo.DriverSQLite
		cfg.Database.DSN = ":memory:"
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := repo.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := repo.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	documentsRepo := repo.NewDocumentRepository(db, logger)
	outcomesRepo := repo.NewOutcomeRepository(db, logger)
	vendorsRepo := repo.NewVendorRepository(db, logger)

	for _, name := range strings.Split(*vendors, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if err := vendorsRepo.AddVendor(ctx, name); err != nil {
			logger.Error("failed to seed vendor", "vendor", name, "error", err)
			os.Exit(1)
		}
	}

	store, err := document.NewFSStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadMB, logger)
	if err != nil {
		logger.Error("failed to init document store", "error", err)
		os.Exit(1)
	}

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	logger.Info("LLM client initialized", "model", cfg.LLM.Model)

	textExtractor, err := ocr.NewTextExtractor(cfg.OCR.Backend, ocr.Config{
		Pdftotext:           cfg.OCR.Pdftotext,
		Pdftoppm:            cfg.OCR.Pdftoppm,
		Tesseract:           cfg.OCR.Tesseract,
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		DPI:                 cfg.OCR.DPI,
		MaxPages:            cfg.OCR.MaxPages,
		EnableTSVConfidence: true,
	}, client, logger)
	if err != nil {
		logger.Error("failed to init OCR", "backend", cfg.OCR.Backend, "error", err)
		os.Exit(1)
	}

	promptOverride := llm.LoadPromptOverride(cfg.LLM.PromptFile, logger)
	fieldExtractor := llm.NewExtractor(client, promptOverride, logger)
	anomalyScorer := llm.NewScorer(client, logger)
	matcher := allowlist.NewMatcher(vendorsRepo, logger)

	engine := pipeline.NewEngine(textExtractor, fieldExtractor, anomalyScorer, matcher,
		cfg.Pipeline, client.ModelName(), logger)
	service := pipeline.NewService(store, engine, outcomesRepo, logger)

	queue := async.NewQueue(service, logger, async.WithWorkers(*workers))

	// Walk the input directory and stage every supported document.
	enqueued := 0
	skipped := 0
	walkErr := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			skipped++
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Error("failed to read file", "path", path, "error", err)
			skipped++
			return nil
		}
		ref, err := store.Save(ctx, filepath.Base(path), content)
		if err != nil {
			logger.Error("failed to stage file", "path", path, "error", err)
			skipped++
			return nil
		}
		if err := documentsRepo.SaveDocument(ctx, ref); err != nil {
			logger.Error("failed to record document", "path", path, "error", err)
			skipped++
			return nil
		}
		if err := queue.Enqueue(ctx, async.Job{Ref: ref, SubmittedAt: time.Now()}); err != nil {
			logger.Error("failed to enqueue document", "document_id", ref.ID, "error", err)
			skipped++
			return nil
		}
		enqueued++
		return nil
	})
	if walkErr != nil {
		logger.Error("failed to walk directory", "dir", *dir, "error", walkErr)
		os.Exit(1)
	}
	logger.Info("ingestion complete", "enqueued", enqueued, "skipped", skipped)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	queue.Shutdown(shutdownCtx)
	cancel()

	exportService := export.NewService(outcomesRepo, documentsRepo, logger)
	xlsxBytes, err := exportService.ExportOutcomesXLSX(ctx)
	if err != nil {
		logger.Error("failed to export outcomes", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	outcomes, err := outcomesRepo.ListAllOutcomes(ctx)
	if err != nil {
		logger.Error("failed to list outcomes", "error", err)
		os.Exit(1)
	}
	var accepted, anomalous, failed int
	for _, o := range outcomes {
		switch o.Kind {
		case constants.OutcomeAccepted:
			accepted++
		case constants.OutcomeAnomalous:
			anomalous++
		case constants.OutcomeFailed:
			failed++
		}
	}

	logger.Info("batch processing complete",
		"enqueued", enqueued,
		"accepted", accepted,
		"anomalous", anomalous,
		"failed", failed,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents enqueued: %d\n", enqueued)
	fmt.Printf("- Accepted: %d\n", accepted)
	fmt.Printf("- Anomalous: %d\n", anomalous)
	fmt.Printf("- Failed: %d\n", failed)
	fmt.Printf("- Output: %s\n", *out)
}
