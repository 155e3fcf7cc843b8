package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/common"
)

var (
	pdfBytes = []byte("%PDF-1.7\nhello")
	pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}
	jpgBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0}
)

func TestSniffMIME(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		want     string
		wantErr  bool
	}{
		{"pdf", "invoice.pdf", pdfBytes, "application/pdf", false},
		{"uppercase extension", "INVOICE.PDF", pdfBytes, "application/pdf", false},
		{"png", "scan.png", pngBytes, "image/png", false},
		{"jpg", "scan.jpg", jpgBytes, "image/jpeg", false},
		{"jpeg alias", "scan.jpeg", jpgBytes, "image/jpeg", false},
		{"unsupported extension", "invoice.docx", []byte("PK"), "", true},
		{"no extension", "invoice", pdfBytes, "", true},
		{"mislabeled content", "invoice.pdf", pngBytes, "", true},
		{"truncated content", "scan.png", []byte{0x89, 'P'}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SniffMIME(tt.filename, tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckMIME(t *testing.T) {
	require.NoError(t, CheckMIME("application/pdf", pdfBytes))
	require.NoError(t, CheckMIME("image/jpeg", jpgBytes))

	err := CheckMIME("text/plain", []byte("hello"))
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	err = CheckMIME("application/pdf", pngBytes)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestFSStoreSaveAndLoad(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), 1, nil)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "invoice.pdf", pdfBytes)
	require.NoError(t, err)

	assert.Equal(t, "invoice.pdf", ref.Filename)
	assert.Equal(t, "application/pdf", ref.MIMEType)
	assert.Equal(t, int64(len(pdfBytes)), ref.SizeBytes)
	assert.FileExists(t, ref.SourcePath)

	got, err := store.LoadBytes(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)
}

func TestFSStoreStripsDirectoryFromFilename(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, 1, nil)
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "../../etc/passwd.pdf", pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, "passwd.pdf", ref.Filename)
	assert.Equal(t, dir, filepath.Dir(ref.SourcePath), "stored file stays inside the upload dir")
}

func TestFSStoreRejectsOversizedUpload(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), 0.001, nil) // ~1KB cap
	require.NoError(t, err)

	big := append([]byte("%PDF-"), make([]byte, 4096)...)
	_, err = store.Save(context.Background(), "big.pdf", big)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFSStoreRejectsUnsupportedContent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir, 1, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "notes.txt", []byte("plain text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestFSStoreRejectsEmptyFilename(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), 1, nil)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "", pdfBytes)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
