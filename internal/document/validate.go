package document

import (
	"fmt"
	"path/filepath"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

// SniffMIME determines the canonical MIME type for a document from its
// filename and leading bytes. Returns common.ErrUnsupportedFormat when the
// extension is not allowed or the content does not match the declared type:
// mislabeled files are rejected before any pipeline attempt is created.
func SniffMIME(filename string, content []byte) (string, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return "", fmt.Errorf("extension %q: %w", ext, common.ErrUnsupportedFormat)
	}
	mimeType := constants.MapExtToMIME(ext)
	if !constants.ContentMatchesMIME(content, mimeType) {
		return "", fmt.Errorf("content does not match %s signature: %w", mimeType, common.ErrUnsupportedFormat)
	}
	return mimeType, nil
}

// CheckMIME validates a caller-declared MIME type against the supported set
// and the content's magic bytes.
func CheckMIME(mimeType string, content []byte) error {
	if _, ok := constants.SupportedMIMETypes[mimeType]; !ok {
		return fmt.Errorf("mime type %q: %w", mimeType, common.ErrUnsupportedFormat)
	}
	if !constants.ContentMatchesMIME(content, mimeType) {
		return fmt.Errorf("content does not match %s signature: %w", mimeType, common.ErrUnsupportedFormat)
	}
	return nil
}
