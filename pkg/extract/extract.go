// Package extract turns raw record text into a billing extraction: a
// candidate document type, monetary amount, due date, vendor and invoice
// number with a confidence score.
//
// Two extractors implement the same contract. The heuristic extractor is
// a pure function of the input text, so identical text always yields an
// identical extraction. The AI extractor delegates to a language model
// and is allowed to return different (non-conflicting) values across
// retries; the merge engine tolerates that.
package extract

import (
	"context"

	"github.com/trestle-legal/docket/pkg/billing"
)

// Extractor produces a billing extraction for one record's text.
//
// Implementations never fail on malformed text; they degrade to an
// empty extraction with confidence 0. Errors are reserved for the
// collaborator being unreachable and surface as
// billing.ErrExtractionUnavailable.
type Extractor interface {
	Extract(ctx context.Context, text string, hint billing.DocumentType) (billing.Extraction, error)
}
