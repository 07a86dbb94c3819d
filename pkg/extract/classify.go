package extract

import (
	"strings"

	"github.com/trestle-legal/docket/pkg/billing"
)

// classifyRule maps a keyword set to a document type. A rule matches
// when every keyword appears in the lowercased text.
type classifyRule struct {
	docType  billing.DocumentType
	keywords []string
}

// classifyRules is evaluated in declaration order and the first match
// wins, so rules must be declared most-specific first.
var classifyRules = []classifyRule{
	{billing.DocTypeLegalInvoice, []string{"invoice", "legal services"}},
	{billing.DocTypeLegalInvoice, []string{"invoice", "attorney"}},
	{billing.DocTypeLegalInvoice, []string{"statement", "professional services"}},
	{billing.DocTypeVendorInvoice, []string{"invoice", "remit"}},
	{billing.DocTypeVendorInvoice, []string{"invoice"}},
	{billing.DocTypeReceipt, []string{"receipt"}},
	{billing.DocTypeReceipt, []string{"payment received"}},
	{billing.DocTypeCourtFiling, []string{"court", "motion"}},
	{billing.DocTypeCourtFiling, []string{"court", "plaintiff"}},
	{billing.DocTypeContract, []string{"agreement", "parties"}},
	{billing.DocTypeContract, []string{"contract"}},
	{billing.DocTypeCorrespondence, []string{"dear"}},
	{billing.DocTypeCorrespondence, []string{"regards"}},
}

// ClassifyDocument returns the document type of text via keyword lookup.
// The hint from the ingestion source wins over classification when set.
func ClassifyDocument(text string, hint billing.DocumentType) billing.DocumentType {
	if hint != billing.DocTypeUnknown {
		return hint
	}

	lower := strings.ToLower(text)
	for _, rule := range classifyRules {
		matched := true
		for _, kw := range rule.keywords {
			if !strings.Contains(lower, kw) {
				matched = false
				break
			}
		}
		if matched {
			return rule.docType
		}
	}
	return billing.DocTypeUnknown
}
