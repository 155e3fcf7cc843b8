package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// transcriptionPrompt asks the vision model for a faithful transcript only.
const transcriptionPrompt = "Transcribe all text from this document image exactly as it appears. " +
	"Preserve layout, numbers, and structure. Output only the transcribed text, " +
	"no commentary or explanation."

// VisionClient is the slice of the language-model backend the vision OCR
// strategy needs: send page images, get raw text back.
type VisionClient interface {
	Transcribe(ctx context.Context, prompt string, imageDataURLs []string) (string, error)
}

// VisionExtractor sends page images to a vision-capable language model and
// treats the response as OCR text. PDFs are rasterized first via pdftoppm.
type VisionExtractor struct {
	cfg    Config
	client VisionClient
	runner Runner
	logger *slog.Logger
}

func NewVisionExtractor(cfg Config, client VisionClient, logger *slog.Logger) *VisionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &VisionExtractor{cfg: cfg, client: client, runner: execRunner{}, logger: logger}
}

func (e *VisionExtractor) Name() string { return "vision" }

func (e *VisionExtractor) Extract(ctx context.Context, ref entity.DocumentRef, content []byte) (Result, error) {
	format, ok := constants.SupportedMIMETypes[ref.MIMEType]
	if !ok {
		return Result{}, fmt.Errorf("mime type %q: %w", ref.MIMEType, common.ErrUnsupportedFormat)
	}

	var (
		urls  []string
		pages int
		warns []string
	)
	switch format {
	case constants.IMAGE:
		urls = []string{dataURL(ref.MIMEType, content)}
		pages = 1
	case constants.PDF:
		path, cleanup, err := stageTempFile(ref, content)
		if err != nil {
			return Result{}, fmt.Errorf("stage document: %w", err)
		}
		defer cleanup()
		images, w, err := rasterizePDF(ctx, e.runner, e.cfg, path)
		warns = append(warns, w...)
		if err != nil {
			return Result{}, wrapToolErr("pdftoppm", err)
		}
		for _, img := range images {
			b, err := os.ReadFile(img)
			if err != nil {
				warns = append(warns, err.Error())
				continue
			}
			urls = append(urls, dataURL("image/png", b))
		}
		pages = len(urls)
	}

	e.logger.Debug("ocr.vision.start", "document_id", ref.ID, "pages", pages)
	text, err := e.client.Transcribe(ctx, transcriptionPrompt, urls)
	if err != nil {
		return Result{}, fmt.Errorf("vision transcription: %w: %w", common.ErrOCRUnavailable, err)
	}

	txt := Normalize(text)
	var quality float32
	if txt != "" {
		// the model gives no word-level confidences; blend a floor for
		// model-transcribed text with the content heuristic
		quality = 0.6 + 0.4*heuristicQuality(txt)
		if quality > 1.0 {
			quality = 1.0
		}
	}
	return Result{Text: txt, Pages: pages, Quality: quality, Method: "vision", Warnings: warns}, nil
}

func dataURL(mimeType string, b []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b)
}
