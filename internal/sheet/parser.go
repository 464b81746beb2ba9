// Package sheet reads and writes the stockroom spreadsheet: a single
// human-edited worksheet mixing a header row at an unknown position,
// section-header rows, spacer rows and item rows. The parser recovers item
// records from that layout; the exporter writes ledger state back into the
// same file without disturbing its structure.
package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SectionSeparator joins the carried section label with a per-row numeric
// sub-identifier, e.g. "Earthwire #12". Export writes only the main label.
const SectionSeparator = " #"

// ErrNoWorksheet indicates the workbook holds no readable worksheet.
var ErrNoWorksheet = errors.New("sheet: workbook has no worksheet")

// Item is one inventory record recovered from an item row.
type Item struct {
	Section     string
	Code        string
	Description string
	PartType    string
	MinLevel    int
	ActualQty   int
	Row         int
}

// Document is the result of structurally parsing one worksheet.
type Document struct {
	Layout Layout
	Items  []Item
}

// MainSection strips the numeric sub-identifier from a composed section
// label, returning the human grouping text alone.
func MainSection(section string) string {
	if idx := strings.LastIndex(section, SectionSeparator); idx >= 0 {
		return section[:idx]
	}
	return section
}

// Parser extracts item records from the stockroom worksheet.
type Parser struct {
	logger    *slog.Logger
	sheetName string
}

// NewParser constructs a Parser. sheetName may be empty, in which case the
// first worksheet of the workbook is used.
func NewParser(logger *slog.Logger, sheetName string) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, sheetName: sheetName}
}

// ParseFile opens and parses the workbook at path. It holds the per-path
// file lock so an export saving the same workbook cannot tear the read.
func (p *Parser) ParseFile(path string) (Document, error) {
	lock := pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("sheet: open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			p.logger.Warn("close workbook", slog.Any("error", err))
		}
	}()
	return p.Parse(f)
}

// Parse extracts items from an open workbook. Malformed rows never fail the
// parse; they are classified out or dropped with a warning. An error is
// returned only when the worksheet itself cannot be read.
func (p *Parser) Parse(f *excelize.File) (Document, error) {
	name, err := resolveSheet(f, p.sheetName)
	if err != nil {
		return Document{}, err
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return Document{}, fmt.Errorf("sheet: read rows of %s: %w", name, err)
	}

	layout := detectLayout(rows)
	doc := Document{Layout: layout}

	section := ""
	for i := layout.HeaderRow; i < len(rows); i++ {
		row := rows[i]
		rowNo := i + 1
		switch classifyRow(layout, row) {
		case RowTotals, RowSpacer:
			continue
		case RowSectionHeader:
			section = cellAt(row, sectionCol(layout))
		case RowItem:
			item, ok := p.buildItem(layout, row, rowNo, section)
			if !ok {
				continue
			}
			doc.Items = append(doc.Items, item)
		}
	}
	return doc, nil
}

// buildItem assembles an Item from a classified item row. Rows carrying a
// code but neither a description nor a parsable quantity are dropped as
// noise; the drop is logged so sparse-but-legitimate rows stay visible.
func (p *Parser) buildItem(layout Layout, row []string, rowNo int, section string) (Item, bool) {
	item := Item{
		Code:        cellAt(row, layout.Col(FieldItemCode)),
		Description: cellAt(row, layout.Col(FieldDescription)),
		PartType:    cellAt(row, layout.Col(FieldPartType)),
		Row:         rowNo,
	}

	minLevel, minOK := parseQty(cellAt(row, layout.Col(FieldMinLevel)))
	actualQty, qtyOK := parseQty(cellAt(row, layout.Col(FieldActualQty)))
	item.MinLevel = minLevel
	item.ActualQty = actualQty

	if item.Description == "" && !minOK && !qtyOK {
		p.logger.Warn("discarding noise row",
			slog.Int("row", rowNo),
			slog.String("item_code", item.Code))
		return Item{}, false
	}

	item.Section = section
	if label := cellAt(row, sectionCol(layout)); label != "" && isPureNumber(label) {
		if section != "" {
			item.Section = section + SectionSeparator + label
		} else {
			item.Section = SectionSeparator + label
		}
	}
	return item, true
}

// resolveSheet picks the worksheet to operate on: the preferred name when
// present, otherwise the workbook's first worksheet.
func resolveSheet(f *excelize.File, preferred string) (string, error) {
	if f == nil || f.SheetCount == 0 {
		return "", ErrNoWorksheet
	}
	if preferred != "" {
		if idx, err := f.GetSheetIndex(preferred); err == nil && idx >= 0 {
			return preferred, nil
		}
	}
	name := f.GetSheetName(0)
	if name == "" {
		return "", ErrNoWorksheet
	}
	return name, nil
}
