package sheet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// Exporter writes ledger state back into the stockroom spreadsheet. Both
// write paths classify rows exactly like the parser and only ever touch
// item rows, so section headers, spacers and the totals row keep the
// template shape intact.
//
// Writes hold the per-path file lock shared with the parser, so imports and
// the two write paths never interleave within the process. External edits
// race on last-writer-wins semantics.
type Exporter struct {
	logger    *slog.Logger
	path      string
	sheetName string
}

// NewExporter constructs an Exporter over the workbook at path.
func NewExporter(logger *slog.Logger, path, sheetName string) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger, path: path, sheetName: sheetName}
}

// PushQuantities overwrites the quantity cell of every item row whose code
// appears in quantities with the given absolute value, leaving every other
// cell untouched. Re-applying the same map is a no-op on file content.
func (e *Exporter) PushQuantities(ctx context.Context, quantities map[string]int) error {
	if len(quantities) == 0 {
		return nil
	}
	lock := pathLock(e.path)
	lock.Lock()
	defer lock.Unlock()

	f, name, layout, rows, err := e.open()
	if err != nil {
		return err
	}
	defer closeWorkbook(e.logger, f)

	qtyCol := layout.Col(FieldActualQty)
	if qtyCol == 0 {
		return fmt.Errorf("sheet: %s has no quantity column", e.path)
	}

	patched := 0
	for i := layout.HeaderRow; i < len(rows); i++ {
		if classifyRow(layout, rows[i]) != RowItem {
			continue
		}
		code := cellAt(rows[i], layout.Col(FieldItemCode))
		qty, ok := quantities[code]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(qtyCol, i+1)
		if err != nil {
			return fmt.Errorf("sheet: cell name: %w", err)
		}
		if err := f.SetCellValue(name, cell, qty); err != nil {
			return fmt.Errorf("sheet: set %s: %w", cell, err)
		}
		patched++
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("sheet: save %s: %w", e.path, err)
	}
	e.logger.Info("pushed quantities to spreadsheet",
		slog.Int("requested", len(quantities)),
		slog.Int("patched", patched))
	return nil
}

// ExportSnapshot loads a copy of the template and overwrites every item row
// whose code matches a ledger item with the ledger's current fields. Ledger
// items absent from the template are not inserted as new rows. Returns the
// filled workbook as xlsx bytes.
func (e *Exporter) ExportSnapshot(ctx context.Context, items []Item) ([]byte, error) {
	lock := pathLock(e.path)
	lock.Lock()
	defer lock.Unlock()

	f, name, layout, rows, err := e.open()
	if err != nil {
		return nil, err
	}
	defer closeWorkbook(e.logger, f)

	byCode := make(map[string]Item, len(items))
	for _, item := range items {
		byCode[item.Code] = item
	}

	for i := layout.HeaderRow; i < len(rows); i++ {
		if classifyRow(layout, rows[i]) != RowItem {
			continue
		}
		item, ok := byCode[cellAt(rows[i], layout.Col(FieldItemCode))]
		if !ok {
			continue
		}
		rowNo := i + 1
		cells := []struct {
			field Field
			value any
		}{
			{FieldSection, MainSection(item.Section)},
			{FieldItemCode, item.Code},
			{FieldDescription, item.Description},
			{FieldPartType, item.PartType},
			{FieldMinLevel, item.MinLevel},
			{FieldActualQty, item.ActualQty},
		}
		for _, c := range cells {
			col := layout.Col(c.field)
			if col == 0 {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col, rowNo)
			if err != nil {
				return nil, fmt.Errorf("sheet: cell name: %w", err)
			}
			if err := f.SetCellValue(name, cell, c.value); err != nil {
				return nil, fmt.Errorf("sheet: set %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("sheet: serialize snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) open() (*excelize.File, string, Layout, [][]string, error) {
	f, err := excelize.OpenFile(e.path)
	if err != nil {
		return nil, "", Layout{}, nil, fmt.Errorf("sheet: open %s: %w", e.path, err)
	}
	name, err := resolveSheet(f, e.sheetName)
	if err != nil {
		closeWorkbook(e.logger, f)
		return nil, "", Layout{}, nil, err
	}
	rows, err := f.GetRows(name)
	if err != nil {
		closeWorkbook(e.logger, f)
		return nil, "", Layout{}, nil, fmt.Errorf("sheet: read rows of %s: %w", name, err)
	}
	return f, name, detectLayout(rows), rows, nil
}

func closeWorkbook(logger *slog.Logger, f *excelize.File) {
	if err := f.Close(); err != nil {
		logger.Warn("close workbook", slog.Any("error", err))
	}
}
