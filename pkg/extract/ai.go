package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trestle-legal/docket/pkg/ai"
	"github.com/trestle-legal/docket/pkg/billing"

	"github.com/araddon/dateparse"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"
)

const extractSystemPrompt = `You are an assistant at a law firm reviewing incoming documents, emails and call transcripts.
Identify whether the text describes something billable and pull out the billing details.
Document types you may assign: legal_invoice, vendor_invoice, receipt, contract, court_filing, correspondence.
Leave fields empty when the text does not state them. Do not guess amounts.`

type aiExtractResponse struct {
	DocumentType  string  `json:"document_type" jsonschema_description:"One of: legal_invoice, vendor_invoice, receipt, contract, court_filing, correspondence, or empty"`
	TotalAmount   float64 `json:"total_amount" jsonschema_description:"Total monetary amount stated in the text, 0 if none"`
	HasAmount     bool    `json:"has_amount" jsonschema_description:"True only when an explicit monetary amount appears in the text"`
	DueDate       string  `json:"due_date" jsonschema_description:"Payment due date as stated in the text, empty if none"`
	Vendor        string  `json:"vendor" jsonschema_description:"Name of the billing vendor or firm, empty if none"`
	InvoiceNumber string  `json:"invoice_number" jsonschema_description:"Invoice or reference number, empty if none"`
	Summary       string  `json:"summary" jsonschema_description:"One-sentence summary of the communication"`
	Confidence    float64 `json:"confidence" jsonschema_description:"Confidence in the extraction between 0 and 1"`
}

// AIExtractor delegates extraction to a language model behind the same
// contract as the heuristic extractor. It is non-deterministic; the
// merge engine tolerates replays returning different values.
type AIExtractor struct {
	client    ai.Client
	limiter   *rate.Limiter
	encoder   string
	maxTokens int
}

// NewAIExtractorParams configures an AIExtractor.
type NewAIExtractorParams struct {
	Client ai.Client
	// MaxTokens bounds the text sent to the model; longer inputs are
	// truncated at a token boundary. Defaults to 6000.
	MaxTokens int
	// RequestsPerSecond rate-limits calls to the collaborator.
	// Defaults to 2.
	RequestsPerSecond float64
}

// NewAIExtractor wraps client in the Extractor contract.
func NewAIExtractor(params NewAIExtractorParams) *AIExtractor {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 6000
	}
	rps := params.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &AIExtractor{
		client:    params.Client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		encoder:   "o200k_base",
		maxTokens: maxTokens,
	}
}

// Extract asks the model for billing details. Collaborator failures are
// wrapped as billing.ErrExtractionUnavailable so the coordinator can
// retry them; an empty or unusable model answer degrades to an empty
// extraction instead of failing.
func (a *AIExtractor) Extract(
	ctx context.Context,
	text string,
	hint billing.DocumentType,
) (billing.Extraction, error) {
	out := billing.Extraction{}

	text = strings.TrimSpace(text)
	if text == "" {
		return out, nil
	}

	truncated, err := a.truncate(text)
	if err != nil {
		return out, err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return out, err
	}

	prompt := truncated
	if hint != billing.DocTypeUnknown {
		prompt = fmt.Sprintf("Source type hint: %s\n\n%s", hint, truncated)
	}

	var res aiExtractResponse
	err = a.client.GenerateCompletionWithFormat(
		ctx,
		"extract_billing_details",
		"Extract billing details from a legal communication.",
		prompt,
		&res,
		ai.WithSystemPrompts(extractSystemPrompt),
	)
	if err != nil {
		return out, fmt.Errorf("%w: %v", billing.ErrExtractionUnavailable, err)
	}

	return normalizeResponse(res, hint), nil
}

func (a *AIExtractor) truncate(text string) (string, error) {
	enc, err := tiktoken.GetEncoding(a.encoder)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= a.maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:a.maxTokens]), nil
}

// normalizeResponse clamps model output into the extraction contract:
// confidence into [0,1], no negative amounts, due dates parsed to UTC.
func normalizeResponse(res aiExtractResponse, hint billing.DocumentType) billing.Extraction {
	out := billing.Extraction{
		Vendor:        strings.TrimSpace(res.Vendor),
		InvoiceNumber: strings.TrimSpace(res.InvoiceNumber),
		Summary:       strings.TrimSpace(res.Summary),
	}

	docType := billing.DocumentType(strings.TrimSpace(strings.ToLower(res.DocumentType)))
	switch docType {
	case billing.DocTypeLegalInvoice, billing.DocTypeVendorInvoice, billing.DocTypeReceipt,
		billing.DocTypeContract, billing.DocTypeCourtFiling, billing.DocTypeCorrespondence:
		out.DocumentType = docType
	default:
		out.DocumentType = hint
	}

	if res.HasAmount && res.TotalAmount > 0 {
		out.TotalAmount = res.TotalAmount
		out.HasAmount = true
	}

	if due := strings.TrimSpace(res.DueDate); due != "" {
		if t, err := dateparse.ParseIn(due, time.UTC); err == nil {
			t = t.UTC()
			out.DueDate = &t
		}
	}

	switch {
	case res.Confidence < 0:
		out.Confidence = 0
	case res.Confidence > 1:
		out.Confidence = 1
	default:
		out.Confidence = res.Confidence
	}

	return out
}
