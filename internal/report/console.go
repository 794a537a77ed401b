package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "n/a"
	}
	return money(d.Decimal)
}

// WriteConsole prints the summary as aligned text tables.
func WriteConsole(w io.Writer, s *Summary) error {
	bw := bufio.NewWriter(w)
	tw := tabwriter.NewWriter(bw, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Source:\t%s\n", s.Source)
	fmt.Fprintf(tw, "Cleaning:\t%s\n", s.Cleaning)
	fmt.Fprintf(tw, "Steps:\t%s\n", strings.Join(s.Steps, " -> "))
	fmt.Fprintf(tw, "Rows:\t%d in, %d out\n", s.Stats.Input, s.Stats.Output)
	for _, st := range s.Stats.Steps {
		state := "removed"
		if !st.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\n", st.Name, state, st.Removed)
	}
	if s.Cleaning.ReportMissing {
		fmt.Fprintf(tw, "Missing values:\tquantity %d, unit_price %d, rows %d\n",
			s.Stats.Missing.Quantity, s.Stats.Missing.UnitPrice, s.Stats.Missing.Rows)
	}

	fmt.Fprintf(tw, "\nFirst %d rows:\n", HeadRows)
	fmt.Fprintln(tw, "InvoiceNo\tStockCode\tDescription\tQuantity\tInvoiceDate\tUnitPrice\tCustomerID\tCountry\tRevenue")
	for _, r := range s.Head {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.InvoiceNo, r.StockCode, r.Description, r.Quantity,
			r.InvoiceDate.Format(time.DateTime), money(r.UnitPrice),
			r.CustomerID, r.Country, money(r.Revenue))
	}

	fmt.Fprintln(tw, "\nRevenue summary:")
	rev := s.Revenue
	fmt.Fprintf(tw, "count\t%d\n", rev.Count)
	for _, row := range []struct {
		label string
		value decimal.NullDecimal
	}{
		{"mean", rev.Mean},
		{"std", rev.Std},
		{"min", rev.Min},
		{"25%", rev.P25},
		{"50%", rev.P50},
		{"75%", rev.P75},
		{"max", rev.Max},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", row.label, nullMoney(row.value))
	}

	fmt.Fprintf(tw, "\nMonthly revenue trend (first %d months):\n", ConsoleMonths)
	for i, m := range s.Monthly {
		if i == ConsoleMonths {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\n", m.Label, money(m.Revenue))
	}
	if len(s.Monthly) == 0 {
		fmt.Fprintln(tw, "(no data)")
	}

	fmt.Fprintf(tw, "\nTop %d products by revenue:\n", s.TopN)
	for _, p := range s.Top {
		fmt.Fprintf(tw, "%s\t%s\n", p.Description, money(p.Revenue))
	}
	if len(s.Top) == 0 {
		fmt.Fprintln(tw, "(no data)")
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	return bw.Flush()
}
