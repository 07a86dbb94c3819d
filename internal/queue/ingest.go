package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trestle-legal/docket/internal/util"
	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/extract"
	"github.com/trestle-legal/docket/pkg/graph"
	"github.com/trestle-legal/docket/pkg/leaselock"
	"github.com/trestle-legal/docket/pkg/loader"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/store"
)

// ProcessIngestMessage runs one ingestion unit through the pipeline:
// fetch and parse the source material, extract the billing signal, and
// merge everything into the graph.
//
// A nil return acks the message. That includes units parked on an
// unknown case or an integrity mismatch: redelivery cannot fix those,
// so they are stored for later requeue or operator review instead of
// bouncing through the retry queue.
func ProcessIngestMessage(
	ctx context.Context,
	source loader.Source,
	extractor extract.Extractor,
	billingStore store.BillingStore,
	locks *leaselock.Client,
	msg string,
	retries int,
) error {
	data := new(IngestMessage)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode ingest message: %w", err)
	}
	if data.UnitID == "" {
		return fmt.Errorf("ingest message has no unit_id")
	}

	timeout := time.Duration(util.GetEnvInt("UNIT_TIMEOUT_SECS", 300)) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("[Ingest] Received unit", "unit_id", data.UnitID, "kind", data.Kind, "pointer", data.SourcePointer)

	record, text, err := loader.New(source).Load(
		ctx,
		billing.RecordKind(data.Kind),
		data.SourcePointer,
		loader.DocumentMeta{ReceivedAt: data.ReceivedAt, AuthorEmail: data.AuthorEmail},
	)
	if err != nil {
		return fmt.Errorf("failed to load unit %s: %w", data.UnitID, err)
	}
	text = util.SanitizePostgresText(text)

	if err := ctx.Err(); err != nil {
		return err
	}

	extraction, err := extractor.Extract(ctx, text, billing.DocumentType(data.DocTypeHint))
	if err != nil {
		return fmt.Errorf("failed to extract unit %s: %w", data.UnitID, err)
	}
	extraction.Summary = util.SanitizePostgresText(extraction.Summary)
	if extraction.Summary == "" {
		extraction.Summary = util.FirstLine(text, 140)
	}
	logger.Info(
		"[Ingest] Unit extracted",
		"unit_id", data.UnitID,
		"doc_type", extraction.DocumentType,
		"has_amount", extraction.HasAmount,
		"confidence", extraction.Confidence,
	)

	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := mergeUnit(ctx, billingStore, locks, record, extraction, data.CaseNumber)
	switch {
	case billing.IsUnknownCase(err):
		return parkUnit(ctx, billingStore, data, msg, retries, "unknown_case", err)
	case billing.IsDataIntegrity(err):
		// Redelivery cannot repair a denormalization mismatch. Park the
		// unit and leave the graph for an operator to inspect.
		logger.Error("[Ingest] Integrity mismatch", "unit_id", data.UnitID, "err", err)
		return parkUnit(ctx, billingStore, data, msg, retries, "data_integrity", err)
	case err != nil:
		return fmt.Errorf("failed to merge unit %s: %w", data.UnitID, err)
	}

	logger.Info(
		"[Ingest] Unit merged",
		"unit_id", data.UnitID,
		"record", result.RecordKey,
		"event_id", result.EventID,
		"event_created", result.EventCreated,
		"event_amended", result.EventAmended,
	)
	return nil
}

// mergeUnit serializes merges of the same record across workers with a
// lease on the record key.
func mergeUnit(
	ctx context.Context,
	billingStore store.BillingStore,
	locks *leaselock.Client,
	record billing.Record,
	extraction billing.Extraction,
	caseNumber string,
) (graph.MergeResult, error) {
	merger := graph.NewMerger(billingStore)
	if locks == nil {
		return merger.Merge(ctx, record, &extraction, caseNumber)
	}

	var result graph.MergeResult
	err := locks.WithLease(ctx, leaselock.MergeKey(record.NaturalKey), leaselock.Options{
		TTL:  2 * time.Minute,
		Wait: true,
	}, func(ctx context.Context) error {
		var mergeErr error
		result, mergeErr = merger.Merge(ctx, record, &extraction, caseNumber)
		return mergeErr
	})
	return result, err
}

func parkUnit(
	ctx context.Context,
	billingStore store.BillingStore,
	data *IngestMessage,
	msg string,
	retries int,
	reason string,
	cause error,
) error {
	unit := store.ParkedUnit{
		ID:         data.UnitID,
		CaseNumber: billing.NormalizeCaseNumber(data.CaseNumber),
		Reason:     reason,
		Retries:    retries,
		Message:    []byte(msg),
		ParkedAt:   time.Now().UTC(),
	}
	if err := billingStore.ParkUnit(ctx, unit); err != nil {
		return fmt.Errorf("failed to park unit %s: %w", data.UnitID, err)
	}
	logger.Warn("[Ingest] Unit parked", "unit_id", data.UnitID, "reason", reason, "err", cause)
	return nil
}
