package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/trestle-legal/docket/pkg/billing"
)

// DocumentMeta carries what the file itself cannot: when the firm
// received it and, when known, who authored it.
type DocumentMeta struct {
	ReceivedAt  time.Time
	AuthorEmail string
}

// ParseDocument parses an uploaded document into a record and its text.
// Word documents are unpacked; anything that decodes as UTF-8 is taken
// as plain text. The natural key is the content hash plus filename, so
// the same scan uploaded twice converges on one record.
func ParseDocument(raw []byte, filename string, meta DocumentMeta) (billing.Record, string, error) {
	if len(raw) == 0 {
		return billing.Record{}, "", fmt.Errorf("document %s is empty", filename)
	}
	if meta.ReceivedAt.IsZero() {
		return billing.Record{}, "", fmt.Errorf("document %s has no received timestamp", filename)
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		text, err = docxText(raw)
		if err != nil {
			return billing.Record{}, "", fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	default:
		if !utf8.Valid(raw) {
			return billing.Record{}, "", fmt.Errorf("document %s is not text", filename)
		}
		text = string(raw)
	}

	hash := contentHash(raw)
	record := billing.Record{
		NaturalKey: hash + "/" + filename,
		Kind:       billing.KindDocument,
		Timestamp:  meta.ReceivedAt.UTC(),
		Document: &billing.DocumentPayload{
			ContentHash: hash,
			Filename:    filename,
			AuthorEmail: meta.AuthorEmail,
		},
	}
	return record, collapseBlankLines(text), nil
}
