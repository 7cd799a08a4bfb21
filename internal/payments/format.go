package payments

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var vndPrinter = message.NewPrinter(language.Vietnamese)

// FormatVND renders an amount in Vietnamese dong with grouping separators,
// e.g. 300000 becomes "300.000 VND".
func FormatVND(amount int64) string {
	return vndPrinter.Sprintf("%d VND", amount)
}
