package reports

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

type excelRow []interface{}

func (r excelRow) GetCellValues() []interface{} { return r }

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// WriteSummaryExcel writes a summary workbook with a figures sheet and a fee breakdown sheet.
func WriteSummaryExcel(w io.Writer, s finance.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	figures := []ExcelExporter{
		excelRow{"Account", s.Filter.AccountId},
		excelRow{"From", s.Filter.Range.From.UTC().Format(utils.DateLayout)},
		excelRow{"To", s.Filter.Range.To.UTC().Format(utils.DateLayout)},
		excelRow{"Marketplace", s.Filter.MarketplaceId},
		excelRow{"SKU", s.Filter.Sku},
		excelRow{"Revenue", money(s.Revenue)},
		excelRow{"Fees", money(s.Fees)},
		excelRow{"Refunds", money(s.Refunds)},
		excelRow{"VAT", money(s.Vat)},
		excelRow{"COGS", money(s.Cogs)},
		excelRow{"Ads", money(s.Ads)},
		excelRow{"Net profit", money(s.NetProfit)},
		excelRow{"Margin %", money(s.Margin)},
		excelRow{"Units sold", s.UnitsSold},
		excelRow{"Shipping", money(s.ShippingCosts)},
		excelRow{"Orders", s.OrderCount},
		excelRow{"Order totals", money(s.OrderTotals)},
		excelRow{"Items missing cost", s.ItemsMissingCost},
	}
	if err := writeSheet(f, "Summary", []string{"Figure", "Value"}, figures); err != nil {
		return err
	}

	fees := make([]ExcelExporter, 0, len(s.FeeBreakdown))
	for _, t := range s.FeeBreakdown {
		fees = append(fees, excelRow{string(t.Category), money(t.Amount), t.Events})
	}
	if err := writeSheet(f, "Fees", []string{"Category", "Amount", "Events"}, fees); err != nil {
		return err
	}
	return finish(f, w)
}

// WriteVerificationExcel writes one row per check and one row per detail line.
func WriteVerificationExcel(w io.Writer, r finance.VerificationReport) error {
	f := excelize.NewFile()
	defer f.Close()

	checks := make([]ExcelExporter, 0, len(r.Checks))
	var details []ExcelExporter
	for _, c := range r.Checks {
		checks = append(checks, excelRow{c.Name, passLabel(c.Passed), len(c.Warnings), len(c.Details), c.Error})
		for _, wrn := range c.Warnings {
			details = append(details, excelRow{c.Name, "warning", wrn})
		}
		for _, d := range c.Details {
			details = append(details, excelRow{c.Name, "detail", d})
		}
	}
	checks = append(checks, excelRow{"overall", passLabel(r.Passed)})
	if err := writeSheet(f, "Checks", []string{"Check", "Result", "Warnings", "Details", "Error"}, checks); err != nil {
		return err
	}
	if err := writeSheet(f, "Details", []string{"Check", "Kind", "Text"}, details); err != nil {
		return err
	}
	return finish(f, w)
}

// WriteOrderBalanceExcel writes the balance lines of one order with their running subtotal.
func WriteOrderBalanceExcel(w io.Writer, b finance.OrderBalance) error {
	f := excelize.NewFile()
	defer f.Close()

	var rows []ExcelExporter
	for _, g := range b.Groups {
		for _, l := range g.Lines {
			rows = append(rows, excelRow{
				string(g.Section), string(g.Category), l.EventId, l.ExternalId, string(l.EventType),
				l.FeeType, l.Sku, l.PostedDate.UTC().Format(utils.DateLayout), money(l.Amount), money(l.Subtotal),
			})
		}
	}
	rows = append(rows, excelRow{"Net", "", "", "", "", "", "", "", money(b.Net)})
	headings := []string{"Section", "Category", "Event", "External id", "Type", "Fee type", "SKU", "Posted", "Amount", "Subtotal"}
	if err := writeSheet(f, "Balance", headings, rows); err != nil {
		return err
	}
	return finish(f, w)
}

func writeSheet(f *excelize.File, sheet string, headings []string, data []ExcelExporter) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for rowNo, d := range data {
		for col, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("sheet %s cell %s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func finish(f *excelize.File, w io.Writer) error {
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx >= 0 && f.SheetCount > 1 {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
