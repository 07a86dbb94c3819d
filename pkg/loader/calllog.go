package loader

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trestle-legal/docket/pkg/billing"
)

// callLogExport is the JSON shape the phone system exports per call.
type callLogExport struct {
	CallID       string    `json:"call_id"`
	Participants []string  `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
	DurationSecs int       `json:"duration_secs"`
	Transcript   string    `json:"transcript"`
	Notes        string    `json:"notes"`
}

// ParseCallLog parses one exported call log entry. The call ID is the
// natural key; the transcript (or the agent notes when there is none)
// becomes the extraction text.
func ParseCallLog(raw []byte) (billing.Record, string, error) {
	var export callLogExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return billing.Record{}, "", fmt.Errorf("failed to parse call log: %w", err)
	}
	if export.CallID == "" {
		return billing.Record{}, "", fmt.Errorf("call log entry has no call_id")
	}
	if export.StartedAt.IsZero() {
		return billing.Record{}, "", fmt.Errorf("call %s has no started_at", export.CallID)
	}

	record := billing.Record{
		NaturalKey: "call:" + export.CallID,
		Kind:       billing.KindPhoneCall,
		Timestamp:  export.StartedAt.UTC(),
		PhoneCall: &billing.PhoneCallPayload{
			CallID:       export.CallID,
			Participants: export.Participants,
			DurationSecs: export.DurationSecs,
		},
	}

	text := strings.TrimSpace(export.Transcript)
	if text == "" {
		text = strings.TrimSpace(export.Notes)
	}
	return record, text, nil
}
