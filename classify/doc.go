// Package classify suggests which candidate category a file belongs to.
//
// Engine scores a file's name and text sample against each candidate using
// four signals: the candidate code, the significant words of its name, the
// instructor, and a curated set of domain keywords. Scores are capped at 100
// and a result is only returned when it clears the acceptance threshold
// for the mode it was computed in. When no text is available the engine
// drops to a reduced filename-only rule set with a lower threshold.
//
// Classifier wraps an Engine with text extraction and an optional remote
// ai.ContentAnalyzer for payloads that cannot be read locally.
package classify
