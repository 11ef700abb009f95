package core

import (
	"time"

	"github.com/google/uuid"
)

// Digest identifies file content. Value is lowercase hex.
// Advisory digests come from the degraded identity fallback and must never
// be used to suppress an upload.
type Digest struct {
	Value    string
	Advisory bool
}

func (d Digest) String() string {
	return d.Value
}

// IsZero reports whether the digest carries no value.
func (d Digest) IsZero() bool {
	return d.Value == ""
}

// NewSessionID returns a random opaque session handle.
func NewSessionID() string {
	return uuid.NewString()
}

// UploadSession is the persisted state of one file's resumable transfer.
// It is owned by the transfer that created it; stores never mutate it on their own.
type UploadSession struct {
	ID                string    `json:"id"`
	ContentDigest     string    `json:"contentDigest"`
	FileName          string    `json:"fileName"`
	FileSizeBytes     int64     `json:"fileSizeBytes"`
	MimeType          string    `json:"mimeType"`
	ScopeID           string    `json:"scopeId,omitempty"`
	TransferURL       string    `json:"transferUrl"`
	BytesAcknowledged int64     `json:"bytesAcknowledged"`
	TotalBytes        int64     `json:"totalBytes"`
	ChunkSizeBytes    int64     `json:"chunkSizeBytes"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *UploadSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Resumable reports whether the transfer can continue from BytesAcknowledged.
func (s *UploadSession) Resumable(now time.Time) bool {
	return s.BytesAcknowledged < s.TotalBytes && !s.Expired(now)
}

// Candidate is one possible classification target, e.g. a course.
type Candidate struct {
	ID         string   `json:"id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Instructor string   `json:"instructor,omitempty"`
	Keywords   []string `json:"keywords,omitempty"` // inferred from code/name when empty
}

// ClassificationResult is a scored association between a file and a candidate.
// It is produced fresh per call and never persisted here.
type ClassificationResult struct {
	TargetID        string   `json:"targetId"`
	Confidence      int      `json:"confidence"` // 0-100
	Reasons         []string `json:"reasons"`
	MatchedKeywords []string `json:"matchedKeywords"`
	FromFilename    bool     `json:"fromFilename,omitempty"`
	FromAnalysis    bool     `json:"fromAnalysis,omitempty"`
}

// AnalysisMatch is one ranked entry returned by the remote content analysis service.
type AnalysisMatch struct {
	CandidateID  string   `json:"candidateId"`
	Confidence   int      `json:"confidence"`
	MatchReasons []string `json:"matchReasons"`
}

// ExistingRecord describes a catalog entry that already holds some content.
type ExistingRecord struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
	ScopeID     string    `json:"scopeId,omitempty"`
}

// DuplicateCheck is the catalog's answer for one digest.
type DuplicateCheck struct {
	IsDuplicate bool            `json:"isDuplicate"`
	Existing    *ExistingRecord `json:"existingRecord,omitempty"`
}

// QuotaDecision is a precomputed gate handed to a batch before dispatch.
type QuotaDecision struct {
	Allowed           bool `json:"allowed"`
	RetryAfterSeconds *int `json:"retryAfterSeconds,omitempty"`
}
