package models

import "time"

// FileType identifies the detected format of an uploaded document. It is
// derived from the file extension by the read stage and drives the
// extraction strategy.
type FileType string

const (
	FileTypeTxt  FileType = "txt"
	FileTypePDF  FileType = "pdf"
	FileTypeDoc  FileType = "doc"
	FileTypeDocx FileType = "docx"
	FileTypeMd   FileType = "md"
	FileTypeRtf  FileType = "rtf"
	FileTypeJava FileType = "java"
	FileTypeRexx FileType = "rexx"
	FileTypePy   FileType = "py"
	FileTypeJs   FileType = "js"
	FileTypeTs   FileType = "ts"
)

// SupportedFileTypes is the full set of extensions the pipeline accepts,
// in the order they are reported to users in error details.
var SupportedFileTypes = []FileType{
	FileTypeTxt, FileTypePDF, FileTypeDoc, FileTypeDocx,
	FileTypeMd, FileTypeRtf,
	FileTypeJava, FileTypeRexx, FileTypePy, FileTypeJs, FileTypeTs,
}

// FileReference is the immutable handle to an uploaded object, created by
// the trigger from the storage event and consumed only by the read stage.
type FileReference struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag"`
	EventTime time.Time `json:"eventTime"`
}

// NormalizedDocument is the read stage's output: extracted, whitespace
// normalized text ready for prompting, plus the source object's identity.
type NormalizedDocument struct {
	Key       string    `json:"key"`
	Bucket    string    `json:"bucket"`
	Size      int64     `json:"size"`
	ETag      string    `json:"etag"`
	EventTime time.Time `json:"eventTime"`
	Text      string    `json:"text"`
	FileType  FileType  `json:"fileType"`
}

// GenerationResult is the generate stage's output: the model's markdown
// together with token accounting and the originating object's identity.
type GenerationResult struct {
	Markdown     string        `json:"markdown"`
	InputTokens  int           `json:"inputTokens"`
	OutputTokens int           `json:"outputTokens"`
	Duration     time.Duration `json:"duration"`
	Key          string        `json:"key"`
	Bucket       string        `json:"bucket"`
	FileType     FileType      `json:"fileType"`
	CompletedAt  time.Time     `json:"completedAt"`
}

// SpecificationRecord is the persist stage's output and the pipeline's
// terminal success value. OutputKey follows the date-partitioned grammar
// YYYY/MM/DD/<basename>-<compact timestamp>.md.
type SpecificationRecord struct {
	Key          string        `json:"key"`
	GeneratedAt  time.Time     `json:"generatedAt"`
	OutputBucket string        `json:"outputBucket"`
	OutputKey    string        `json:"outputKey"`
	Duration     time.Duration `json:"duration"`
	WordCount    int           `json:"wordCount"`
	FileType     FileType      `json:"fileType"`
	ProcessingID string        `json:"processingId"`
	InputTokens  int           `json:"inputTokens"`
	OutputTokens int           `json:"outputTokens"`
}

// ExecutionRecord tracks one pipeline execution in Firestore. It mirrors
// the lifecycle states driven by the coordinator.
type ExecutionRecord struct {
	ProcessingID string    `firestore:"processingId,omitempty"`
	OriginalFile string    `firestore:"originalFile,omitempty"`
	State        string    `firestore:"state,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	OutputKey    string    `firestore:"outputKey,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}

// CompletionOutput is the raw result of one completion-capability call.
type CompletionOutput struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	StopReason   string `json:"stopReason"`
}
