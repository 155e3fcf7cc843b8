package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// Result is the uniform output of every OCR strategy: recognized text plus a
// quality signal in [0,1]. 1.0 means a native PDF text layer; OCR-derived
// text scores lower. Empty text from a non-empty document is still a
// successful extraction, with Quality 0 — validation decides what to do.
type Result struct {
	Text     string
	Pages    int
	Quality  float32
	Method   string // "pdf-text" | "pdf-ocr" | "image-ocr" | "vision"
	Warnings []string
}

// TextExtractor is Stage 1 of the pipeline: document bytes -> text.
// Implementations must be safe for concurrent use and honor ctx cancellation.
type TextExtractor interface {
	Extract(ctx context.Context, ref entity.DocumentRef, content []byte) (Result, error)
	Name() string
}

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

func (c *Config) applyDefaults() {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
}

// NewTextExtractor selects the OCR strategy once, at configuration-load time.
// The pipeline engine never branches on the backend itself.
func NewTextExtractor(backend string, cfg Config, vision VisionClient, logger *slog.Logger) (TextExtractor, error) {
	switch backend {
	case "structural":
		return NewStructuralExtractor(cfg, logger), nil
	case "vision":
		if vision == nil {
			return nil, fmt.Errorf("vision OCR backend selected but no vision client configured")
		}
		return NewVisionExtractor(cfg, vision, logger), nil
	default:
		return nil, fmt.Errorf("unknown OCR backend: %q", backend)
	}
}

// stageTempFile writes document bytes to a temp file so the external tools
// (pdftotext, pdftoppm, tesseract) can read them. Returns path and cleanup.
func stageTempFile(ref entity.DocumentRef, content []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "ip-doc-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	ext := constants.NormalizeExt(filepath.Ext(ref.Filename))
	if ext == "" {
		switch constants.SupportedMIMETypes[ref.MIMEType] {
		case constants.PDF:
			ext = "pdf"
		default:
			ext = "png"
		}
	}
	path := filepath.Join(dir, "doc."+ext)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
