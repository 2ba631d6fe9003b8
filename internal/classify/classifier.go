// Package classify decides what kind of data a source table holds. Source
// schemas are uncontrolled third-party spreadsheet tabs, so classification is
// a keyword heuristic over column names, kept behind a small interface so a
// different heuristic can be swapped in without touching the normalizer.
package classify

import (
	"strings"

	"github.com/formsync/formsync/internal/domain"
)

// Classifier decides whether a source table holds survey responses or static
// reference data, given its title and a sample of its raw rows.
type Classifier interface {
	Classify(title string, rows []domain.RawRow) domain.TableKind
}

// responseSignals are column-name fragments typical of submission rows.
var responseSignals = []string{"date", "browser", "device", "timestamp"}

// referenceSignals are column-name fragments typical of question or answer
// definition sheets.
var referenceSignals = []string{"question", "answer", "option", "choice"}

// KeywordClassifier scores column names against the two signal sets.
type KeywordClassifier struct{}

// NewKeywordClassifier creates a KeywordClassifier.
func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{}
}

// Classify applies the keyword heuristic:
//
//   - titles that look like an answer sheet are always reference
//   - otherwise the higher-scoring signal set wins
//   - a nonzero tie resolves to reference
//   - no signal at all defaults to response when the table has rows, and
//     unknown when it is empty
func (KeywordClassifier) Classify(title string, rows []domain.RawRow) domain.TableKind {
	if strings.Contains(strings.ToLower(title), "answer sheet") {
		return domain.KindReference
	}

	columns := columnSet(rows)
	respScore := score(columns, responseSignals)
	refScore := score(columns, referenceSignals)

	switch {
	case respScore > refScore:
		return domain.KindResponse
	case refScore > respScore:
		return domain.KindReference
	case respScore > 0: // nonzero tie
		return domain.KindReference
	case len(rows) > 0:
		return domain.KindResponse
	default:
		return domain.KindUnknown
	}
}

// columnSet collects the distinct lower-cased column names across the sample.
func columnSet(rows []domain.RawRow) map[string]struct{} {
	cols := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Fields {
			cols[strings.ToLower(k)] = struct{}{}
		}
	}
	return cols
}

func score(columns map[string]struct{}, signals []string) int {
	n := 0
	for col := range columns {
		for _, sig := range signals {
			if strings.Contains(col, sig) {
				n++
				break
			}
		}
	}
	return n
}
