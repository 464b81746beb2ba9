package sheet

import "strings"

// RowKind is the structural classification of a worksheet row below the
// header. Classification rules apply in order; the first match wins.
type RowKind int

const (
	// RowSpacer is template whitespace, skipped on import and export.
	RowSpacer RowKind = iota
	// RowTotals is the worksheet totals row, never parsed as data.
	RowTotals
	// RowSectionHeader carries the grouping label for the rows below it.
	RowSectionHeader
	// RowItem holds one inventory item record.
	RowItem
)

func (k RowKind) String() string {
	switch k {
	case RowTotals:
		return "totals"
	case RowSectionHeader:
		return "section-header"
	case RowItem:
		return "item"
	default:
		return "spacer"
	}
}

// classifyRow assigns a structural kind to one data row.
//
// Section headers are rows whose label column repeats its text into one of
// the data columns (or spills it into a quantity column) instead of holding
// item data; neither quantity column may parse as a number. Spacer rows have
// no code, no description and empty or zero quantities. Anything with a
// non-empty, non-zero item code is an item row.
func classifyRow(layout Layout, row []string) RowKind {
	label := cellAt(row, sectionCol(layout))
	if strings.EqualFold(label, "totals") {
		return RowTotals
	}

	code := cellAt(row, layout.Col(FieldItemCode))
	desc := cellAt(row, layout.Col(FieldDescription))
	partType := cellAt(row, layout.Col(FieldPartType))
	minRaw := cellAt(row, layout.Col(FieldMinLevel))
	qtyRaw := cellAt(row, layout.Col(FieldActualQty))
	_, minNumeric := parseQty(minRaw)
	_, qtyNumeric := parseQty(qtyRaw)

	if label != "" && !isPureNumber(label) && !minNumeric && !qtyNumeric {
		if textRepeats(label, code, desc, partType) || textRepeats(label, minRaw, qtyRaw) {
			return RowSectionHeader
		}
	}

	if code == "" && desc == "" && (label == "" || !isParenthetical(label)) &&
		isEmptyOrZero(minRaw) && isEmptyOrZero(qtyRaw) {
		return RowSpacer
	}

	if code != "" && code != "0" {
		return RowItem
	}
	return RowSpacer
}

// sectionCol resolves the label column, falling back to column A when the
// header row did not name a section column.
func sectionCol(layout Layout) int {
	if col := layout.Col(FieldSection); col > 0 {
		return col
	}
	return 1
}

// textRepeats reports whether the label text reappears verbatim or
// near-verbatim (one containing the other after normalization) in any of
// the candidate cells.
func textRepeats(label string, candidates ...string) bool {
	want := normalizeCell(label)
	if want == "" {
		return false
	}
	for _, candidate := range candidates {
		got := normalizeCell(candidate)
		if got == "" {
			continue
		}
		if got == want || strings.Contains(got, want) || strings.Contains(want, got) {
			return true
		}
	}
	return false
}

func isParenthetical(s string) bool {
	return strings.Contains(s, "(")
}
