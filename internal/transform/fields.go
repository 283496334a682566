package transform

import (
	"math"
	"regexp"
	"strings"
)

var (
	reEMD       = regexp.MustCompile(`(?i)\bEMD\b|\bEarnest Money\b|\bEMD Amount\b|\bEarnest Money Deposit\b`)
	reEMDAmount = regexp.MustCompile(`([₹RsINR\s]*[0-9.,]+(?:\s*[lL]akh|[lL]ac[h]?|[cC]rore)?)`)
	reEPBG      = regexp.MustCompile(`(?i)\b(e-?PBG|EPBG|PBG|Performance Bank Guarantee)\b`)
	reQty       = regexp.MustCompile(`(?i)\bQty(?:uantity)?[:\s]*([0-9,.]+)\b`)
	reTotalQty  = regexp.MustCompile(`(?i)\bTotal Quantity[:\s]*([0-9,.]+)\b`)
	reUnit      = regexp.MustCompile(`(?i)\bUnit[: \t]*([A-Za-z0-9/\- \t]+)\b`)
	reEstValue  = regexp.MustCompile(`(?i)\bEstimated Value[: \t]*([A-Za-z0-9.,\- \t₹]+)\b`)
	reBidNo     = regexp.MustCompile(`(?i)\b(Bid No(?:\.|:)?|Bid Number[:\s])\s*([A-Za-z0-9\-/]+)`)
	reBidEnd    = regexp.MustCompile(`(?i)\bBid End Date[:\s]*([^\n\r]+)`)
	reItem      = regexp.MustCompile(`(?i)\bItem(?:s)?[:\s]*(.+)`)
	reConsignee = regexp.MustCompile(`(?i)\bConsignee[:\s]*(.+)`)
	reSpecLine  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 ()/.\-]{1,48}?)\s*:\s*(\S.*)$`)
)

// emdWindowLen is how far past an EMD mention the amount may appear.
const emdWindowLen = 200

// knownLabels are field labels handled by dedicated rules; they never become
// technical specifications.
var knownLabels = []string{
	"bid no", "bid number", "bid end date", "bid start date", "item", "items",
	"total quantity", "quantity", "qty", "unit", "emd", "emd amount",
	"earnest money", "earnest money deposit", "epbg", "pbg", "estimated value",
	"consignee", "buyer",
}

// Fields are the structured values extracted from a bid document.
type Fields struct {
	Buyer              *string           `json:"buyer"`
	ItemDescription    *string           `json:"item_description"`
	TotalQuantity      *string           `json:"total_quantity"`
	Unit               *string           `json:"unit"`
	EMDAmount          *string           `json:"emd_amount"`
	EPBGRequired       bool              `json:"epbg_required"`
	TechnicalSpecs     map[string]string `json:"technical_specs"`
	Consignee          *string           `json:"consignee"`
	EstimatedValue     *string           `json:"estimated_value"`
	BidNumberExtracted *string           `json:"bid_number_extracted"`
	BidEnd             *string           `json:"bid_end"`
}

// ExtractFields applies the bid field rules to the combined document text.
func ExtractFields(text string, lines []string) Fields {
	var f Fields

	if m := reBidNo.FindStringSubmatch(text); m != nil {
		f.BidNumberExtracted = trimmed(m[2])
	}
	if m := reBidEnd.FindStringSubmatch(text); m != nil {
		f.BidEnd = trimmed(m[1])
	}
	if m := reItem.FindStringSubmatch(text); m != nil {
		f.ItemDescription = trimmed(m[1])
	}
	if m := reTotalQty.FindStringSubmatch(text); m != nil {
		f.TotalQuantity = trimmed(m[1])
	} else if m := reQty.FindStringSubmatch(text); m != nil {
		f.TotalQuantity = trimmed(m[1])
	}
	if m := reUnit.FindStringSubmatch(text); m != nil {
		f.Unit = trimmed(m[1])
	}
	if loc := reEMD.FindStringIndex(text); loc != nil {
		f.EMDAmount = emdAmountNear(text, loc[0])
	}
	f.EPBGRequired = reEPBG.MatchString(text)
	if m := reEstValue.FindStringSubmatch(text); m != nil {
		f.EstimatedValue = trimmed(m[1])
	}
	if m := reConsignee.FindStringSubmatch(text); m != nil {
		f.Consignee = trimmed(m[1])
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			f.Buyer = &line
			break
		}
	}
	f.TechnicalSpecs = extractSpecs(lines)
	return f
}

// emdAmountNear looks for an amount in the window after an EMD mention. An
// EMD mention without an amount yields an empty, non-nil value.
func emdAmountNear(text string, start int) *string {
	end := min(len(text), start+emdWindowLen)
	window := text[start:end]
	if m := reEMDAmount.FindStringSubmatch(window); m != nil {
		return trimmed(m[1])
	}
	empty := ""
	return &empty
}

func extractSpecs(lines []string) map[string]string {
	specs := make(map[string]string)
	for _, line := range lines {
		m := reSpecLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.TrimRight(strings.TrimSpace(m[1]), ": ")
		if isKnownLabel(key) {
			continue
		}
		specs[key] = strings.TrimSpace(m[2])
	}
	if len(specs) == 0 {
		return nil
	}
	return specs
}

func isKnownLabel(key string) bool {
	lower := strings.ToLower(key)
	for _, label := range knownLabels {
		if lower == label || strings.HasPrefix(lower, label+" ") {
			return true
		}
	}
	return false
}

func trimmed(value string) *string {
	value = strings.TrimSpace(value)
	return &value
}

// Confidence is the fraction of key fields present, plus 0.2 when the bid
// number was found, capped at 1 and rounded to three decimals.
func (f Fields) Confidence() float64 {
	found := 0
	for _, present := range []bool{
		nonEmpty(f.ItemDescription),
		nonEmpty(f.TotalQuantity),
		nonEmpty(f.EMDAmount),
		len(f.TechnicalSpecs) > 0,
	} {
		if present {
			found++
		}
	}
	confidence := float64(found) / 4
	if nonEmpty(f.BidNumberExtracted) {
		confidence = math.Min(1, confidence+0.2)
	}
	return math.Round(confidence*1000) / 1000
}

func nonEmpty(value *string) bool {
	return value != nil && *value != ""
}
