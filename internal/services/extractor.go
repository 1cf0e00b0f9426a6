package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

// Content length bounds enforced after extraction. Violations are terminal:
// re-reading the same object cannot change its content.
const (
	MinContentLength = 10
	MaxContentLength = 1 << 20
)

var (
	blankLineRuns  = regexp.MustCompile(`\n{3,}`)
	rtfControlWord = regexp.MustCompile(`\\[a-zA-Z]+-?\d* ?`)
	rtfHexEscape   = regexp.MustCompile(`\\'[0-9a-fA-F]{2}`)
)

// Extractor turns raw bytes plus a detected file type into normalized text
// suitable for prompting. It is the only component with format-specific
// logic.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract produces a NormalizedDocument for the referenced object, or a
// terminal file-read error for unknown formats, undecodable content, and
// content outside the length bounds.
func (e *Extractor) Extract(data []byte, fileType models.FileType, ref models.FileReference) (*models.NormalizedDocument, *models.ProcessingError) {
	var text string

	switch fileType {
	case models.FileTypeTxt, models.FileTypeMd,
		models.FileTypeJava, models.FileTypeRexx,
		models.FileTypePy, models.FileTypeJs, models.FileTypeTs:
		if !utf8.Valid(data) {
			return nil, models.NewReadError(ref.Key, fmt.Sprintf("%s content is not valid UTF-8", fileType), nil)
		}
		text = normalizeWhitespace(string(data))

	case models.FileTypeRtf:
		if !utf8.Valid(data) {
			return nil, models.NewReadError(ref.Key, "rtf content is not valid UTF-8", nil)
		}
		text = normalizeWhitespace(stripRtfMarkup(string(data)))

	case models.FileTypePDF, models.FileTypeDoc, models.FileTypeDocx:
		text = e.binaryPlaceholder(data, fileType, ref.Key)

	default:
		return nil, models.NewReadError(ref.Key, fmt.Sprintf("no extraction strategy for file type %q", fileType), nil)
	}

	if n := len(text); n < MinContentLength {
		return nil, models.NewContentLengthError(ref.Key, n, MinContentLength, true)
	} else if n > MaxContentLength {
		return nil, models.NewContentLengthError(ref.Key, n, MaxContentLength, false)
	}

	return &models.NormalizedDocument{
		Key:       ref.Key,
		Bucket:    ref.Bucket,
		Size:      ref.Size,
		ETag:      ref.ETag,
		EventTime: ref.EventTime,
		Text:      text,
		FileType:  fileType,
	}, nil
}

// binaryPlaceholder embeds binary document content as base64 behind an
// explanatory preamble. PDF/DOC/DOCX are not parsed into text; the model is
// told what it is looking at instead. For PDFs the page count is read with
// pdfcpu to give the prompt at least a size signal; a parse failure only
// degrades the preamble.
func (e *Extractor) binaryPlaceholder(data []byte, fileType models.FileType, key string) string {
	pages := ""
	if fileType == models.FileTypePDF {
		cfg := model.NewDefaultConfiguration()
		cfg.ValidationMode = model.ValidationRelaxed
		if count, err := api.PageCount(bytes.NewReader(data), cfg); err == nil {
			pages = fmt.Sprintf("Page count: %d\n", count)
		} else {
			e.logger.Warn("Could not determine PDF page count.", zap.String("key", key), zap.Error(err))
		}
	}

	return fmt.Sprintf(
		"[Binary %s document: %s]\n"+
			"Full text extraction is not performed for this format. The raw content is base64-encoded below; "+
			"derive the specification from the document's name, type, and any structure you can infer.\n"+
			"%sBase64 content:\n%s",
		strings.ToUpper(string(fileType)), key, pages,
		base64.StdEncoding.EncodeToString(data))
}

// normalizeWhitespace collapses line endings to LF, squeezes runs of three
// or more newlines down to a single blank line, and trims the edges.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// stripRtfMarkup removes RTF control words, hex escapes, and group braces,
// leaving approximately the document's plain text.
func stripRtfMarkup(text string) string {
	text = rtfHexEscape.ReplaceAllString(text, "")
	text = rtfControlWord.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "{", "")
	text = strings.ReplaceAll(text, "}", "")
	return text
}
