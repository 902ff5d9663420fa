package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// export column layout, shared by CSV and XLSX.
var exportHeader = []string{
	"Date", "Vendor", "Category", "Description", "Amount", "Tax", "Currency", "Status", "Duplicate",
}

// Exporter renders expense exports and emails them to the requester.
type Exporter struct {
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	dispatcher notification.Dispatcher
	logger     *zap.Logger
}

func NewExporter(
	expenses *repository.ExpenseRepository,
	categories *repository.CategoryRepository,
	dispatcher notification.Dispatcher,
	logger *zap.Logger,
) *Exporter {
	return &Exporter{
		expenses:   expenses,
		categories: categories,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ExportCSV renders all expenses matching the filter as CSV bytes.
func (x *Exporter) ExportCSV(ctx context.Context, orgID uuid.UUID, f repository.ExpenseFilter) ([]byte, decimal.Decimal, error) {
	rows, total, err := x.exportRows(ctx, orgID, f)
	if err != nil {
		return nil, decimal.Zero, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, decimal.Zero, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, decimal.Zero, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), total, nil
}

// ExportXLSX renders all expenses matching the filter as an Excel workbook.
func (x *Exporter) ExportXLSX(ctx context.Context, orgID uuid.UUID, f repository.ExpenseFilter) ([]byte, decimal.Decimal, error) {
	rows, total, err := x.exportRows(ctx, orgID, f)
	if err != nil {
		return nil, decimal.Zero, err
	}

	file := excelize.NewFile()
	defer file.Close()
	const sheet = "Expenses"
	file.SetSheetName("Sheet1", sheet)

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, title); err != nil {
			return nil, decimal.Zero, fmt.Errorf("write xlsx header: %w", err)
		}
	}
	for i, row := range rows {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return nil, decimal.Zero, fmt.Errorf("write xlsx row: %w", err)
			}
		}
	}

	// Totals row under the data.
	totalCell, _ := excelize.CoordinatesToCellName(5, len(rows)+3)
	labelCell, _ := excelize.CoordinatesToCellName(4, len(rows)+3)
	file.SetCellValue(sheet, labelCell, "Total")
	file.SetCellValue(sheet, totalCell, total.InexactFloat64())

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, decimal.Zero, fmt.Errorf("serialize xlsx: %w", err)
	}
	return buf.Bytes(), total, nil
}

// EmailExport renders the export and delivers it to the recipient in the
// background. Errors after the render are logged, not returned: the HTTP
// request has already been answered by then.
func (x *Exporter) EmailExport(ctx context.Context, orgID uuid.UUID, f repository.ExpenseFilter, format, recipient string) error {
	var data []byte
	var total decimal.Decimal
	var err error
	var fileName string

	label := time.Now().UTC().Format("2006-01-02")
	if f.DateFrom != nil && f.DateTo != nil {
		label = rangeLabel(*f.DateFrom, *f.DateTo)
	}

	switch format {
	case "csv":
		data, total, err = x.ExportCSV(ctx, orgID, f)
		fileName = fmt.Sprintf("expenses_%s.csv", label)
	case "xlsx":
		data, total, err = x.ExportXLSX(ctx, orgID, f)
		fileName = fmt.Sprintf("expenses_%s.xlsx", label)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return err
	}

	notice := &notification.ExportNotice{
		Recipient:  recipient,
		Subject:    fmt.Sprintf("Expense export %s", label),
		FileName:   fileName,
		Data:       data,
		TotalSpend: total,
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := x.dispatcher.Export(sendCtx, notice); err != nil {
			x.logger.Error("failed to email export",
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}()
	return nil
}

func (x *Exporter) exportRows(ctx context.Context, orgID uuid.UUID, f repository.ExpenseFilter) ([][]string, decimal.Decimal, error) {
	expenses, _, err := x.expenses.List(ctx, orgID, f, 0, 0)
	if err != nil {
		return nil, decimal.Zero, err
	}

	categoryNames := map[uuid.UUID]string{}
	if cats, err := x.categories.List(ctx, orgID); err == nil {
		for _, c := range cats {
			categoryNames[c.ID] = c.Name
		}
	}

	rows := make([][]string, 0, len(expenses))
	total := decimal.Zero
	for _, e := range expenses {
		category := ""
		if e.CategoryID != nil {
			category = categoryNames[*e.CategoryID]
		}
		duplicate := ""
		if e.IsDuplicate {
			duplicate = "yes"
		}
		rows = append(rows, []string{
			e.Date.Format(models.DateLayout),
			e.VendorName,
			category,
			e.Description,
			e.Amount.StringFixed(2),
			e.TaxAmount.StringFixed(2),
			e.Currency,
			e.Status,
			duplicate,
		})
		total = total.Add(e.Amount)
	}
	return rows, total, nil
}
