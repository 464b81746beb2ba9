package sheet

import (
	"strconv"
	"strings"
)

// Field identifies a logical column of the stockroom worksheet.
type Field int

const (
	// FieldSection is the grouping label column.
	FieldSection Field = iota
	// FieldItemCode is the stable item key column.
	FieldItemCode
	// FieldDescription is the free-text description column.
	FieldDescription
	// FieldPartType is the part classification column.
	FieldPartType
	// FieldMinLevel is the reorder threshold column.
	FieldMinLevel
	// FieldActualQty is the on-hand quantity column.
	FieldActualQty
)

// headerVocabulary maps normalized header labels to logical fields.
var headerVocabulary = map[string]Field{
	"section":          FieldSection,
	"item code":        FieldItemCode,
	"item description": FieldDescription,
	"part type":        FieldPartType,
	"minlevel":         FieldMinLevel,
	"min level":        FieldMinLevel,
	"actual qty":       FieldActualQty,
}

const (
	headerScanWindow     = 10
	headerScanWindowWide = 50
	headerMinMatches     = 4
)

// Layout locates the header row and the columns carrying each field.
// Column indexes are 1-based; a missing field maps to 0.
type Layout struct {
	HeaderRow int
	Columns   map[Field]int
}

// Col returns the 1-based column index for a field, 0 when unmapped.
func (l Layout) Col(f Field) int {
	return l.Columns[f]
}

// defaultLayout is the fallback when no header row can be located.
func defaultLayout() Layout {
	return Layout{
		HeaderRow: 1,
		Columns: map[Field]int{
			FieldSection:     1,
			FieldItemCode:    2,
			FieldDescription: 3,
			FieldPartType:    4,
			FieldMinLevel:    5,
			FieldActualQty:   6,
		},
	}
}

// detectLayout scans a bounded window of leading rows for the header.
// It never fails: an unresolved scan falls back to the default layout.
func detectLayout(rows [][]string) Layout {
	if layout, ok := scanHeader(rows, headerScanWindow); ok {
		return layout
	}
	if layout, ok := scanHeader(rows, headerScanWindowWide); ok {
		return layout
	}
	return defaultLayout()
}

func scanHeader(rows [][]string, window int) (Layout, bool) {
	for i := 0; i < len(rows) && i < window; i++ {
		columns := make(map[Field]int)
		for j, cell := range rows[i] {
			field, ok := headerVocabulary[normalizeCell(cell)]
			if !ok {
				continue
			}
			if _, dup := columns[field]; !dup {
				columns[field] = j + 1
			}
		}
		if len(columns) >= headerMinMatches {
			return Layout{HeaderRow: i + 1, Columns: columns}, true
		}
	}
	return Layout{}, false
}

// normalizeCell lowercases a cell and collapses internal whitespace.
func normalizeCell(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// cellAt returns the trimmed cell text at a 1-based column, "" when absent.
func cellAt(row []string, col int) string {
	if col <= 0 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}

// parseQty parses an integer quantity cell. Excel renders whole numbers
// without a fraction, but manual edits occasionally leave "12.0".
func parseQty(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

func isPureNumber(s string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil
}

func isEmptyOrZero(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	n, ok := parseQty(s)
	return ok && n == 0
}
