package domain

import "time"

// Survey is a normalized response-bearing source table. Exactly one Survey
// exists per response-classified SourceTable.
type Survey struct {
	ID            int64
	Name          string
	SourceTableID string
	Description   string
}

// Question is one column of a Survey's rows, in first-seen column order.
// (SurveyID, Key) is unique.
type Question struct {
	ID       int64
	SurveyID int64
	Key      string // original column name
	Text     string // display text
	Order    int
}

// Respondent is a deduplicated anonymous submitter, identified by a stable
// fingerprint hash of (browser, device, submission day). The fingerprint is
// never overwritten; only the counters and timestamps move.
type Respondent struct {
	ID             int64
	Fingerprint    string
	Browser        string
	Device         string
	FirstSeen      time.Time
	LastSeen       time.Time
	TotalResponses int
}

// Response is one submission event, traced back to exactly one raw row.
type Response struct {
	ID           int64
	SurveyID     int64
	RespondentID int64
	SubmittedAt  time.Time
	SourceRowID  int64
}

// Answer is the value of one (response, question) pair. Text is canonical;
// Numeric and Boolean are best-effort typed annotations derived from it.
// Exactly one of {Text present, Empty} holds.
type Answer struct {
	ID         int64
	ResponseID int64
	QuestionID int64
	Text       string
	Numeric    *float64
	Boolean    *bool
	Empty      bool
}

// Value is the tagged result of coercing one raw cell string, so downstream
// code pattern-matches instead of re-parsing.
type Value struct {
	Text    string
	Numeric *float64
	Boolean *bool
	Empty   bool
}
