package reports

import (
	"encoding/csv"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// formatAmount renders a decimal with thousands separators and two decimal
// places for human-facing exports. Machine columns keep the plain string.
func formatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("%.2f", f)
}

// WriteTrialBalanceCSV serialises a grouped trial balance to CSV. Group
// subtotal rows carry an empty account code.
func WriteTrialBalanceCSV(w io.Writer, tb GroupedTrialBalance) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Group", "Code", "Account", "Type", "Debit", "Credit"}); err != nil {
		return err
	}
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			if err := writer.Write([]string{
				grp.Key,
				acc.Code,
				acc.Name,
				acc.Type,
				formatAmount(acc.Debit),
				formatAmount(acc.Credit),
			}); err != nil {
				return err
			}
		}
		if err := writer.Write([]string{
			grp.Key, "", "Subtotal", "",
			formatAmount(grp.Debit),
			formatAmount(grp.Credit),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		"", "", "Total", "",
		formatAmount(tb.TotalDebit),
		formatAmount(tb.TotalCredit),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
