package core

// Outcome is the terminal state of one file's pipeline pass.
type Outcome string

const (
	OutcomeUploaded  Outcome = "uploaded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// TransferResult is the single terminal result produced for each file in a batch.
type TransferResult struct {
	FileName         string
	Outcome          Outcome
	RecordID         string    // set when Outcome is uploaded
	ExistingRecordID string    // set when Outcome is duplicate
	ErrorKind        ErrorKind // set when Outcome is failed
	Message          string
	Digest           string
	ScopeID          string
	Classification   *ClassificationResult
}

// Uploaded builds a successful result.
func Uploaded(fileName, recordID string) TransferResult {
	return TransferResult{FileName: fileName, Outcome: OutcomeUploaded, RecordID: recordID}
}

// Duplicate builds a result for content the catalog already holds.
func Duplicate(fileName, existingRecordID string) TransferResult {
	return TransferResult{FileName: fileName, Outcome: OutcomeDuplicate, ExistingRecordID: existingRecordID}
}

// Failed builds a failure result, deriving the kind from err.
func Failed(fileName string, err error) TransferResult {
	r := TransferResult{FileName: fileName, Outcome: OutcomeFailed, ErrorKind: KindOf(err)}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Succeeded reports whether the file ended up in the remote store, either by
// upload or because identical content was already there.
func (r TransferResult) Succeeded() bool {
	return r.Outcome == OutcomeUploaded || r.Outcome == OutcomeDuplicate
}
