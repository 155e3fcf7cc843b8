package constants

import (
	"bytes"
	"strings"
)

// Format is the coarse document class the pipeline understands.
type Format string

const (
	PDF   Format = "PDF"
	IMAGE Format = "IMAGE"
)

// AllowedExtensions holds the file extensions accepted for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// SupportedMIMETypes maps the declared MIME types we accept to their format.
var SupportedMIMETypes = map[string]Format{
	"application/pdf": PDF,
	"image/png":       IMAGE,
	"image/jpeg":      IMAGE,
}

// magicSignatures maps MIME type -> leading bytes expected in the content.
var magicSignatures = map[string][]byte{
	"application/pdf": []byte("%PDF-"),
	"image/png":       {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	"image/jpeg":      {0xff, 0xd8, 0xff},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the Format for a file extension, or "" if unsupported.
func MapExtToFormat(ext string) Format {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}

// MapExtToMIME returns the canonical MIME type for a file extension, or "".
func MapExtToMIME(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}

// ContentMatchesMIME reports whether the leading bytes of content carry the
// magic signature expected for mimeType. Unknown MIME types pass the check.
func ContentMatchesMIME(content []byte, mimeType string) bool {
	sig, ok := magicSignatures[mimeType]
	if !ok {
		return true
	}
	return len(content) >= len(sig) && bytes.Equal(content[:len(sig)], sig)
}
