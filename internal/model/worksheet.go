package model

// LineItemSource identifies where a worksheet line item's value came from.
type LineItemSource string

// Line item sources.
const (
	LineFromNPS        LineItemSource = "NPS_API"
	LineFromProfile    LineItemSource = "COMPANY_PROFILE"
	LineFromUser       LineItemSource = "USER_INPUT"
	LineFromCalculated LineItemSource = "CALCULATED"
	LineFromTaxLaw     LineItemSource = "TAX_LAW"
)

// LineItem is one input row of a refund worksheet. Value carries numeric
// lines (amounts in won, headcounts, rates in basis points); Text carries
// informational lines. Only editable numeric lines accept overrides.
type LineItem struct {
	Key      string         `json:"key"`
	Label    string         `json:"label"`
	Unit     string         `json:"unit,omitempty"`
	Text     string         `json:"text,omitempty"`
	Source   LineItemSource `json:"source"`
	Value    int64          `json:"value"`
	Editable bool           `json:"editable"`
}

// Subtotal is a rollup over a fixed subset of line items. Keys is decided
// at generation time and never changes across overrides; only Amount flows.
type Subtotal struct {
	Label  string   `json:"label"`
	Keys   []string `json:"keys"`
	Amount int64    `json:"amount"`
}

// Worksheet is the editable, recomputable breakdown backing one
// opportunity's estimated refund. TotalRefund is always a pure function of
// the line items through the subtotal grouping; it is never set directly.
type Worksheet struct {
	UserOverrides map[string]int64 `json:"userOverrides,omitempty"`
	Title         string           `json:"title"`
	LineItems     []LineItem       `json:"lineItems"`
	Subtotals     []Subtotal       `json:"subtotals"`
	Assumptions   []string         `json:"assumptions,omitempty"`
	TotalRefund   int64            `json:"totalRefund"`
}

// Item returns a pointer to the line item with the given key.
func (w *Worksheet) Item(key string) (*LineItem, bool) {
	for i := range w.LineItems {
		if w.LineItems[i].Key == key {
			return &w.LineItems[i], true
		}
	}
	return nil, false
}

// Recompute rebuilds every subtotal and the grand total from the current
// line item values. No incremental caching: worksheets are small and a
// full pass keeps the total trivially consistent.
func (w *Worksheet) Recompute() {
	values := make(map[string]int64, len(w.LineItems))
	for i := range w.LineItems {
		values[w.LineItems[i].Key] = w.LineItems[i].Value
	}

	var total int64
	for i := range w.Subtotals {
		var sum int64
		for _, key := range w.Subtotals[i].Keys {
			sum += values[key]
		}
		w.Subtotals[i].Amount = sum
		total += sum
	}

	// Without subtotals the total falls back to the sum of numeric lines.
	if len(w.Subtotals) == 0 {
		for i := range w.LineItems {
			if w.LineItems[i].Text == "" {
				total += w.LineItems[i].Value
			}
		}
	}

	w.TotalRefund = total
}

// Clone returns a deep copy. Override application works on a copy so a
// rejected override leaves the stored worksheet untouched.
func (w *Worksheet) Clone() *Worksheet {
	c := *w
	c.LineItems = make([]LineItem, len(w.LineItems))
	copy(c.LineItems, w.LineItems)
	c.Subtotals = make([]Subtotal, len(w.Subtotals))
	for i, st := range w.Subtotals {
		keys := make([]string, len(st.Keys))
		copy(keys, st.Keys)
		c.Subtotals[i] = Subtotal{Label: st.Label, Keys: keys, Amount: st.Amount}
	}
	c.Assumptions = append([]string(nil), w.Assumptions...)
	c.UserOverrides = make(map[string]int64, len(w.UserOverrides))
	for k, v := range w.UserOverrides {
		c.UserOverrides[k] = v
	}
	return &c
}
