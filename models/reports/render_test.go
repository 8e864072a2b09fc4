package reports

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{"", FormatText, false},
		{"TEXT", FormatText, false},
		{" json ", FormatJSON, false},
		{"excel", FormatXLSX, false},
		{"xlsx", FormatXLSX, false},
		{"csv", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseFormat(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestWriteVerificationText(t *testing.T) {
	report := finance.VerificationReport{
		AccountId: "acct-1",
		AsOf:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Checks: []finance.CheckResult{
			{Name: "duplicate_fees", Passed: false, Details: []string{"111-1 SKU-1 Commission x2"}},
			{Name: "vat_sanity", Passed: true, Warnings: []string{"2024-03-30 vat 0.00%"}},
		},
	}
	var buf bytes.Buffer
	if err := WriteVerification(&buf, FormatText, report); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"as_of=2024-03-31",
		"[FAIL] duplicate_fees",
		"  111-1 SKU-1 Commission x2",
		"[PASS] vat_sanity",
		"  warning: 2024-03-30 vat 0.00%",
		"Overall: FAIL",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteSummaryExcel(t *testing.T) {
	s := finance.Summary{
		Filter: finance.SummaryFilter{
			AccountId: "acct-1",
			Range: finance.DateRange{
				From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
			},
		},
		Revenue:   decimal.RequireFromString("25.50"),
		Fees:      decimal.RequireFromString("3.20"),
		NetProfit: decimal.RequireFromString("22.30"),
		FeeBreakdown: []finance.FeeCategoryTotal{
			{Category: "referral", Amount: decimal.RequireFromString("3.20"), Events: 1},
		},
	}
	var buf bytes.Buffer
	if err := WriteSummary(&buf, FormatXLSX, s); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("Summary", "B2"); got != "acct-1" {
		t.Fatalf("account cell = %q", got)
	}
	if got, _ := f.GetCellValue("Summary", "A7"); got != "Revenue" {
		t.Fatalf("A7 = %q, want Revenue", got)
	}
	if got, _ := f.GetCellValue("Summary", "B7"); got != "25.5" {
		t.Fatalf("revenue cell = %q, want 25.5", got)
	}
	if got, _ := f.GetCellValue("Fees", "A2"); got != "referral" {
		t.Fatalf("fee category cell = %q", got)
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx >= 0 {
		t.Fatalf("default sheet should be removed")
	}
}
