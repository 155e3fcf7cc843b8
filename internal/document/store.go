package document

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// Store is the document storage collaborator. The pipeline only ever reads;
// Save is used by the ingestion flow before a run starts.
type Store interface {
	Save(ctx context.Context, filename string, content []byte) (entity.DocumentRef, error)
	LoadBytes(ctx context.Context, ref entity.DocumentRef) ([]byte, error)
}

// FSStore keeps source documents on the local filesystem under one directory,
// each saved as <uuid>_<original filename>.
type FSStore struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewFSStore(dir string, maxUploadMB float64, logger *slog.Logger) (*FSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	maxBytes := int64(maxUploadMB * 1024 * 1024)
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &FSStore{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Save validates and persists an uploaded document, returning its reference.
// Unsupported or mislabeled content is rejected here, so the pipeline never
// sees a document it cannot process for format reasons.
func (s *FSStore) Save(ctx context.Context, filename string, content []byte) (entity.DocumentRef, error) {
	if filename == "" {
		return entity.DocumentRef{}, common.NewAppError("UPLOAD_ERROR", "no filename provided", common.ErrInvalidInput)
	}
	if int64(len(content)) > s.maxBytes {
		return entity.DocumentRef{}, common.NewAppError("UPLOAD_ERROR",
			fmt.Sprintf("file too large: %d bytes (max %d)", len(content), s.maxBytes), common.ErrInvalidInput)
	}

	mimeType, err := SniffMIME(filename, content)
	if err != nil {
		return entity.DocumentRef{}, err
	}

	id := uuid.New()
	path := filepath.Join(s.dir, id.String()+"_"+filepath.Base(filename))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return entity.DocumentRef{}, fmt.Errorf("write document: %w", err)
	}

	ref := entity.DocumentRef{
		ID:         id,
		Filename:   filepath.Base(filename),
		MIMEType:   mimeType,
		SourcePath: path,
		SizeBytes:  int64(len(content)),
	}
	s.logger.Info("document.saved", "document_id", ref.ID, "filename", ref.Filename, "mime", mimeType, "bytes", ref.SizeBytes)
	return ref, nil
}

func (s *FSStore) LoadBytes(_ context.Context, ref entity.DocumentRef) ([]byte, error) {
	b, err := os.ReadFile(ref.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", ref.ID, err)
	}
	return b, nil
}
