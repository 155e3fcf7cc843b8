package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// StructuralExtractor prefers the document's own structure: the PDF text
// layer when one exists, falling back to rasterization plus tesseract for
// scanned PDFs and images.
type StructuralExtractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewStructuralExtractor(cfg Config, logger *slog.Logger) *StructuralExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &StructuralExtractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (e *StructuralExtractor) Name() string { return "structural" }

func (e *StructuralExtractor) Extract(ctx context.Context, ref entity.DocumentRef, content []byte) (Result, error) {
	format, ok := constants.SupportedMIMETypes[ref.MIMEType]
	if !ok {
		return Result{}, fmt.Errorf("mime type %q: %w", ref.MIMEType, common.ErrUnsupportedFormat)
	}

	path, cleanup, err := stageTempFile(ref, content)
	if err != nil {
		return Result{}, fmt.Errorf("stage document: %w", err)
	}
	defer cleanup()

	e.logger.Debug("ocr.structural.start", "document_id", ref.ID, "format", format)
	switch format {
	case constants.PDF:
		return e.extractPDF(ctx, path)
	case constants.IMAGE:
		return e.extractImage(ctx, path)
	default:
		return Result{}, fmt.Errorf("format %q: %w", format, common.ErrUnsupportedFormat)
	}
}

func (e *StructuralExtractor) extractPDF(ctx context.Context, path string) (Result, error) {
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("pdf page count: %w", err)
	}

	text, warns, err := e.pdfToText(ctx, path)
	if err != nil {
		return Result{}, wrapToolErr("pdftotext", err)
	}
	if txt := Normalize(text); txt != "" {
		// native text layer: highest quality signal
		return Result{Text: txt, Pages: pageCount, Quality: 1.0, Method: "pdf-text", Warnings: warns}, nil
	}

	// no text layer: rasterize and OCR page by page
	txt, warns2, err := e.pdfToOCR(ctx, path)
	warns = append(warns, warns2...)
	if err != nil {
		return Result{}, wrapToolErr("pdf ocr", err)
	}
	txt = Normalize(reBoxNoise.ReplaceAllString(txt, ""))
	quality := float32(0)
	if txt != "" {
		quality = heuristicQuality(txt)
	}
	return Result{Text: txt, Pages: pageCount, Quality: quality, Method: "pdf-ocr", Warnings: warns}, nil
}

func (e *StructuralExtractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, warns, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return Result{}, wrapToolErr("tesseract", err)
	}
	txt = Normalize(txt)

	var quality float32
	if txt != "" {
		heur := heuristicQuality(txt)
		if e.cfg.EnableTSVConfidence {
			if tsv, w, err2 := e.tesseractTSVConfidence(ctx, path); err2 == nil && tsv > 0 {
				// weight word-level OCR confidence higher than the heuristic
				quality = 0.7*tsv + 0.3*heur
				warns = append(warns, w...)
			} else {
				quality = heur
			}
		} else {
			quality = heur
		}
		if quality > 1.0 {
			quality = 1.0
		}
	}

	return Result{Text: txt, Pages: 1, Quality: quality, Method: "image-ocr", Warnings: warns}, nil
}

func (e *StructuralExtractor) pdfToText(ctx context.Context, path string) (string, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", []string{string(errb)}, err
	}
	return string(out), nil, nil
}

func (e *StructuralExtractor) pdfToOCR(ctx context.Context, path string) (string, []string, error) {
	images, warns, err := rasterizePDF(ctx, e.runner, e.cfg, path)
	if err != nil {
		return "", warns, err
	}

	var b strings.Builder
	for _, img := range images {
		txt, w, err := e.tesseractOCR(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), warns, nil
}

func (e *StructuralExtractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *StructuralExtractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	lines := strings.Split(string(out), "\n")
	// columns: level page block par line word left top width height conf text
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean := sum / n // 0..100
	return float32(mean / 100.0), nil, nil
}

// rasterizePDF renders PDF pages to PNGs next to the source temp file and
// returns the sorted page image paths.
func rasterizePDF(ctx context.Context, r Runner, cfg Config, path string) ([]string, []string, error) {
	prefix := filepath.Join(filepath.Dir(path), "page")
	// pdftoppm -r 300 -png <in.pdf> <dir/page>
	_, errb, err := r.Run(ctx, cfg.Pdftoppm, "-r", fmt.Sprintf("%d", cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, []string{string(errb)}, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if cfg.MaxPages > 0 && len(matches) > cfg.MaxPages {
		matches = matches[:cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}
	return matches, nil, nil
}

// wrapToolErr maps a missing external binary onto the backend-unavailable
// sentinel so the engine can tell "cannot reach the OCR backend" apart
// from "the document defeated it".
func wrapToolErr(tool string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %v: %w", tool, err, common.ErrOCRUnavailable)
	}
	return fmt.Errorf("%s: %w", tool, err)
}
