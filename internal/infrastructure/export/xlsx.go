package export

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultSheetName = "Expenses"
	moneyFormat      = "#,##0.00"
)

var headers = []string{
	"ID", "Submitted", "Submitter", "Category", "Description", "Expense Date",
	"Amount", "Currency", "Converted Amount", "Base Currency", "Status", "Decisions",
}

// XLSXConfig holds spreadsheet export settings
type XLSXConfig struct {
	// TemplatePath is an optional workbook whose first sheet already carries a header.
	// Rows are written from StartRow. Empty means a generated workbook.
	TemplatePath string
	StartRow     int
}

// XLSXExporter renders expense rows into an xlsx workbook
type XLSXExporter struct {
	cfg    XLSXConfig
	logger *zap.Logger
}

// NewXLSXExporter creates a new xlsx exporter
func NewXLSXExporter(cfg XLSXConfig, logger *zap.Logger) *XLSXExporter {
	if cfg.StartRow <= 0 {
		cfg.StartRow = 2
	}
	return &XLSXExporter{cfg: cfg, logger: logger}
}

// ContentType implements port.ExpenseExporter
func (x *XLSXExporter) ContentType() string { return xlsxContentType }

// Export implements port.ExpenseExporter
func (x *XLSXExporter) Export(ctx context.Context, w io.Writer, rows []port.ExportRow) error {
	f, sheet, startRow, err := x.open()
	if err != nil {
		return err
	}
	defer f.Close()

	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(moneyFormat)})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := startRow + i
		if err := f.SetSheetRow(sheet, cellName(1, r), rowValues(row)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
		x.setStyle(f, sheet, cellName(7, r), cellName(7, r), moneyStyle)
		x.setStyle(f, sheet, cellName(9, r), cellName(9, r), moneyStyle)
	}

	if len(rows) > 0 {
		first, last := startRow, startRow+len(rows)-1
		totalRow := last + 1
		x.setCell(f, sheet, cellName(8, totalRow), "Total")
		if err := f.SetCellFormula(sheet, cellName(9, totalRow),
			fmt.Sprintf("SUM(%s:%s)", cellName(9, first), cellName(9, last))); err != nil {
			x.logger.Warn("Failed to set total formula", zap.Error(err))
		}
		x.setStyle(f, sheet, cellName(9, totalRow), cellName(9, totalRow), moneyStyle)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	x.logger.Info("Expense export written", zap.Int("rows", len(rows)))
	return nil
}

// open returns the workbook, the sheet and the first data row
func (x *XLSXExporter) open() (*excelize.File, string, int, error) {
	if x.cfg.TemplatePath != "" {
		f, err := excelize.OpenFile(x.cfg.TemplatePath)
		if err != nil {
			return nil, "", 0, fmt.Errorf("failed to open template: %w", err)
		}
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, "", 0, fmt.Errorf("template has no sheets")
		}
		return f, sheets[0], x.cfg.StartRow, nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", defaultSheetName); err != nil {
		_ = f.Close()
		return nil, "", 0, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(defaultSheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, "", 0, fmt.Errorf("failed to write header: %w", err)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		x.setStyle(f, defaultSheetName, "A1", cellName(len(headers), 1), bold)
	}
	if err := f.SetPanes(defaultSheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		x.logger.Warn("Failed to freeze header row", zap.Error(err))
	}
	_ = f.SetColWidth(defaultSheetName, "B", "B", 20)
	_ = f.SetColWidth(defaultSheetName, "C", "E", 24)

	return f, defaultSheetName, 2, nil
}

func rowValues(row port.ExportRow) *[]interface{} {
	e := row.Expense
	values := []interface{}{
		e.ID,
		e.SubmittedAt.Format("2006-01-02 15:04"),
		row.SubmitterName,
		e.Category,
		e.Description,
		e.ExpenseDate.Format("2006-01-02"),
		e.Amount.InexactFloat64(),
		e.Currency,
		nil,
		nil,
		string(e.Status),
		len(e.History),
	}
	if c := row.Conversion; c != nil && c.Status == entity.ConversionStatusConverted {
		values[8] = c.ConvertedAmount.InexactFloat64()
		values[9] = c.ToCurrency
	}
	return &values
}

// setCell sets a cell value, logging instead of failing the export
func (x *XLSXExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		x.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func (x *XLSXExporter) setStyle(f *excelize.File, sheet, from, to string, style int) {
	if err := f.SetCellStyle(sheet, from, to, style); err != nil {
		x.logger.Warn("Failed to set cell style", zap.String("range", from+":"+to), zap.Error(err))
	}
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func strPtr(s string) *string { return &s }

var _ port.ExpenseExporter = (*XLSXExporter)(nil)
