package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

func newTestReader(store *fakeStore, config ReaderConfig) *Reader {
	return NewReader(store, NewExtractor(zap.NewNop()), config, zap.NewNop())
}

func TestReaderAcceptsFileAtExactSizeLimit(t *testing.T) {
	store := newFakeStore()
	content := strings.Repeat("a", 64)
	store.objects["uploads/uploads/spec.txt"] = []byte(content)

	// Transport ceiling lifted to isolate the storage boundary.
	reader := newTestReader(store, ReaderConfig{MaxFileSize: MaxFileSizeBytes, MaxTransportPayload: MaxFileSizeBytes})

	ref := testRef("uploads/spec.txt", MaxFileSizeBytes)
	doc, perr := reader.Process(context.Background(), ref)
	require.Nil(t, perr)
	assert.Equal(t, content, doc.Text)
}

func TestReaderRejectsFileOverSizeLimit(t *testing.T) {
	reader := newTestReader(newFakeStore(), DefaultReaderConfig())

	_, perr := reader.Process(context.Background(), testRef("uploads/spec.txt", MaxFileSizeBytes+1))
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrFileRead, perr.Kind)
	assert.False(t, perr.Retryable)
	assert.Equal(t, "10485761", perr.Details["actualSize"])
	assert.Equal(t, "10485760", perr.Details["maxSize"])
}

func TestReaderRejectsFileOverTransportCeiling(t *testing.T) {
	reader := newTestReader(newFakeStore(), DefaultReaderConfig())

	// 201 KiB: under the storage limit, over the orchestration payload limit.
	_, perr := reader.Process(context.Background(), testRef("uploads/spec.txt", 201<<10))
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrFileTooLargeForTransport, perr.Kind)
	assert.NotEqual(t, models.ErrFileRead, perr.Kind)
	assert.Equal(t, "204800", perr.Details["maxSize"])
}

func TestReaderRejectsUnsupportedExtension(t *testing.T) {
	store := newFakeStore()
	reader := newTestReader(store, DefaultReaderConfig())

	_, perr := reader.Process(context.Background(), testRef("uploads/app.exe", 42))
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrFileRead, perr.Kind)
	assert.Equal(t, "exe", perr.Details["actualFormat"])
	assert.Contains(t, perr.Details["supportedFormats"], "txt")
	assert.Contains(t, perr.Details["supportedFormats"], "rexx")
	assert.Zero(t, store.getCalls, "format rejection must short-circuit before the store fetch")
}

func TestReaderStoreFailureIsTerminalReadError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection reset")
	reader := newTestReader(store, DefaultReaderConfig())

	_, perr := reader.Process(context.Background(), testRef("uploads/spec.txt", 42))
	require.NotNil(t, perr)
	assert.Equal(t, models.ErrFileRead, perr.Kind)
	assert.False(t, perr.Retryable)
	assert.Contains(t, perr.Details["cause"], "connection reset")
}

func TestReaderEndToEndNormalizes(t *testing.T) {
	store := newFakeStore()
	store.objects["uploads/uploads/spec.txt"] = []byte("Build a login page with email+password.")
	reader := newTestReader(store, DefaultReaderConfig())

	doc, perr := reader.Process(context.Background(), testRef("uploads/spec.txt", 42))
	require.Nil(t, perr)
	assert.Equal(t, "Build a login page with email+password.", doc.Text)
	assert.Equal(t, models.FileTypeTxt, doc.FileType)
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		key      string
		want     models.FileType
		detected bool
	}{
		{"uploads/a.txt", models.FileTypeTxt, true},
		{"uploads/a.PDF", models.FileTypePDF, true},
		{"uploads/nested/path/program.REXX", models.FileTypeRexx, true},
		{"uploads/a.ts", models.FileTypeTs, true},
		{"uploads/a.exe", "", false},
		{"uploads/no-extension", "", false},
	}
	for _, tc := range tests {
		got, ok := DetectFileType(tc.key)
		assert.Equal(t, tc.detected, ok, tc.key)
		assert.Equal(t, tc.want, got, tc.key)
	}
}
