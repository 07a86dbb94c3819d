package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trestle-legal/docket/pkg/billing"
	"github.com/trestle-legal/docket/pkg/logger"
	"github.com/trestle-legal/docket/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// ProcessCaseRegistered requeues units parked on a case number that has
// just been registered. The case row itself is written by the API
// before the announcement is published, so by the time a requeued unit
// merges the case lookup succeeds.
func ProcessCaseRegistered(
	ctx context.Context,
	billingStore store.BillingStore,
	ch *amqp091.Channel,
	msg string,
) error {
	data := new(CaseRegisteredMessage)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode case message: %w", err)
	}

	caseNumber := billing.NormalizeCaseNumber(data.CaseNumber)
	if caseNumber == "" {
		return fmt.Errorf("case message has no case_number")
	}

	c, err := billingStore.GetCase(ctx, caseNumber)
	if err != nil {
		return fmt.Errorf("failed to look up case %s: %w", caseNumber, err)
	}
	if c == nil {
		return fmt.Errorf("announced case %s is not registered", caseNumber)
	}

	units, err := billingStore.ListParkedUnits(ctx, caseNumber)
	if err != nil {
		return fmt.Errorf("failed to list parked units for %s: %w", caseNumber, err)
	}
	if len(units) == 0 {
		logger.Debug("[Case] No parked units to requeue", "case", caseNumber)
		return nil
	}

	requeued := 0
	for _, unit := range units {
		if unit.Reason != "unknown_case" {
			continue
		}
		if err := PublishFIFO(ch, IngestQueue, unit.Message); err != nil {
			return fmt.Errorf("failed to requeue unit %s: %w", unit.ID, err)
		}
		if err := billingStore.DeleteParkedUnit(ctx, unit.ID); err != nil {
			return fmt.Errorf("failed to unpark unit %s: %w", unit.ID, err)
		}
		requeued++
	}

	logger.Info("[Case] Requeued parked units", "case", caseNumber, "count", requeued)
	return nil
}
