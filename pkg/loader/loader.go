// Package loader turns raw ingested payloads (RFC 5322 emails, call log
// exports, scanned document files) into normalized communication
// records plus the text the extraction adapter reads.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/trestle-legal/docket/pkg/billing"
)

// Source fetches a raw payload by its opaque source pointer. The
// pointer stays on the record so the original material remains
// auditable.
type Source interface {
	Fetch(ctx context.Context, pointer string) ([]byte, error)
}

// Loader parses raw payloads fetched from a Source.
type Loader struct {
	source Source
}

// New returns a loader over src.
func New(src Source) *Loader {
	return &Loader{source: src}
}

// Load fetches the payload behind pointer and parses it according to
// kind. It returns the normalized record and the text to extract from.
func (l *Loader) Load(
	ctx context.Context,
	kind billing.RecordKind,
	pointer string,
	meta DocumentMeta,
) (billing.Record, string, error) {
	raw, err := l.source.Fetch(ctx, pointer)
	if err != nil {
		return billing.Record{}, "", fmt.Errorf("failed to fetch %s: %w", pointer, err)
	}

	var (
		record billing.Record
		text   string
	)
	switch kind {
	case billing.KindEmail:
		record, text, err = ParseEmail(raw)
	case billing.KindPhoneCall:
		record, text, err = ParseCallLog(raw)
	case billing.KindDocument:
		record, text, err = ParseDocument(raw, filepath.Base(pointer), meta)
	default:
		return billing.Record{}, "", fmt.Errorf("unknown record kind %q", kind)
	}
	if err != nil {
		return billing.Record{}, "", err
	}

	record.SourcePointer = pointer
	return record, text, nil
}

// contentHash is the stable identity of an opaque payload.
func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// collapseBlankLines trims runs of blank lines left behind by markup
// stripping.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
