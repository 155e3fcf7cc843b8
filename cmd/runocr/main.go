package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/document"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/llm/openai"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/ocr"
)

// runocr runs OCR on a single file and dumps the recognized text. Useful for
// tuning OCR_BACKEND and the tesseract knobs without touching the pipeline.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <file>")
		os.Exit(2)
	}
	path := os.Args[1]

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	mimeType, err := document.SniffMIME(filepath.Base(path), content)
	if err != nil {
		logger.Error("unsupported document", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()

	var vision ocr.VisionClient
	if cfg.OCR.Backend == "vision" {
		vision = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			VisionModel: cfg.LLM.VisionModel,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	}

	textExtractor, err := ocr.NewTextExtractor(cfg.OCR.Backend, ocr.Config{
		Pdftotext:           cfg.OCR.Pdftotext,
		Pdftoppm:            cfg.OCR.Pdftoppm,
		Tesseract:           cfg.OCR.Tesseract,
		TesseractLang:       cfg.OCR.TesseractLang,
		TessdataDir:         cfg.OCR.TessdataDir,
		DPI:                 cfg.OCR.DPI,
		MaxPages:            cfg.OCR.MaxPages,
		EnableTSVConfidence: true,
	}, vision, logger)
	if err != nil {
		logger.Error("init ocr", "backend", cfg.OCR.Backend, "error", err)
		os.Exit(1)
	}

	ref := entity.DocumentRef{
		ID:         uuid.New(),
		Filename:   filepath.Base(path),
		MIMEType:   mimeType,
		SourcePath: path,
		SizeBytes:  int64(len(content)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := textExtractor.Extract(ctx, ref, content)
	dur := time.Since(start)

	if err != nil {
		logger.Error("ocr failed", "path", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("ocr OK",
		"method", res.Method,
		"pages", res.Pages,
		"quality", res.Quality,
		"bytes", len(res.Text),
		"warnings", len(res.Warnings),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(res.Text)
}
