package reports

import (
	"fmt"
	"io"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/finance"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ParseFormat accepts text, json and xlsx; empty means text.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or xlsx)", s)
}

func writeJSON(w io.Writer, v any) error {
	b, err := utils.MarshalIndentJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func WriteSummary(w io.Writer, format string, s finance.Summary) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, s)
	case FormatXLSX:
		return WriteSummaryExcel(w, s)
	}
	return WriteSummaryText(w, s)
}

func WriteSummaryText(w io.Writer, s finance.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation summary account=%s %s..%s\n", s.Filter.AccountId,
		s.Filter.Range.From.UTC().Format(utils.DateLayout), s.Filter.Range.To.UTC().Format(utils.DateLayout))
	if s.Filter.MarketplaceId != "" {
		fmt.Fprintf(&b, "  marketplace:        %s\n", s.Filter.MarketplaceId)
	}
	if s.Filter.Sku != "" {
		fmt.Fprintf(&b, "  sku:                %s\n", s.Filter.Sku)
	}
	fmt.Fprintf(&b, "  revenue:            %s\n", s.Revenue.StringFixed(2))
	fmt.Fprintf(&b, "  fees:               %s\n", s.Fees.StringFixed(2))
	for _, t := range s.FeeBreakdown {
		fmt.Fprintf(&b, "    %-18s%s (%d events)\n", string(t.Category)+":", t.Amount.StringFixed(2), t.Events)
	}
	fmt.Fprintf(&b, "  refunds:            %s\n", s.Refunds.StringFixed(2))
	fmt.Fprintf(&b, "  vat:                %s\n", s.Vat.StringFixed(2))
	fmt.Fprintf(&b, "  cogs:               %s\n", s.Cogs.StringFixed(2))
	fmt.Fprintf(&b, "  ads:                %s\n", s.Ads.StringFixed(2))
	fmt.Fprintf(&b, "  net profit:         %s\n", s.NetProfit.StringFixed(2))
	fmt.Fprintf(&b, "  margin:             %s%%\n", s.Margin.StringFixed(2))
	fmt.Fprintf(&b, "  units sold:         %d\n", s.UnitsSold)
	fmt.Fprintf(&b, "  shipping:           %s\n", s.ShippingCosts.StringFixed(2))
	fmt.Fprintf(&b, "  orders:             %d (totals %s)\n", s.OrderCount, s.OrderTotals.StringFixed(2))
	if s.ItemsMissingCost > 0 {
		fmt.Fprintf(&b, "  WARNING: %d items have no product cost\n", s.ItemsMissingCost)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func WriteVerification(w io.Writer, format string, r finance.VerificationReport) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatXLSX:
		return WriteVerificationExcel(w, r)
	}
	return WriteVerificationText(w, r)
}

func WriteVerificationText(w io.Writer, r finance.VerificationReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Data quality verification account=%s as_of=%s\n", r.AccountId, r.AsOf.UTC().Format(utils.DateLayout))
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "[%s] %s\n", passLabel(c.Passed), c.Name)
		if c.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", c.Error)
		}
		for _, wrn := range c.Warnings {
			fmt.Fprintf(&b, "  warning: %s\n", wrn)
		}
		for _, d := range c.Details {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	fmt.Fprintf(&b, "Overall: %s\n", passLabel(r.Passed))
	_, err := io.WriteString(w, b.String())
	return err
}

func WriteOrderBalance(w io.Writer, format string, ob finance.OrderBalance) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, ob)
	case FormatXLSX:
		return WriteOrderBalanceExcel(w, ob)
	}
	return WriteOrderBalanceText(w, ob)
}

func WriteOrderBalanceText(w io.Writer, ob finance.OrderBalance) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s (%d events)\n", ob.AmazonOrderId, ob.Events)
	for _, g := range ob.Groups {
		title := string(g.Section)
		if g.Category != "" {
			title += " / " + string(g.Category)
		}
		fmt.Fprintf(&b, "%s\n", title)
		for _, l := range g.Lines {
			label := string(l.EventType)
			if l.FeeType != "" {
				label += " " + l.FeeType
			}
			fmt.Fprintf(&b, "  %s  %-40s %12s %12s\n", l.PostedDate.UTC().Format(utils.DateLayout), label, l.Amount.StringFixed(2), l.Subtotal.StringFixed(2))
		}
		fmt.Fprintf(&b, "  total %s\n", g.Total.StringFixed(2))
	}
	fmt.Fprintf(&b, "Revenue %s  Fees %s  Refunds %s  Other %s\n", ob.TotalRevenue.StringFixed(2),
		ob.TotalFees.StringFixed(2), ob.TotalRefunds.StringFixed(2), ob.TotalOther.StringFixed(2))
	if !ob.TotalPending.IsZero() {
		fmt.Fprintf(&b, "Pending (not in net) %s\n", ob.TotalPending.StringFixed(2))
	}
	fmt.Fprintf(&b, "Net %s\n", ob.Net.StringFixed(2))
	_, err := io.WriteString(w, b.String())
	return err
}
