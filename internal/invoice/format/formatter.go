package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidPadRe = regexp.MustCompile(`\{ULID(\d+)\}`)
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}{DD}-{ULID10}"

// FormatInvoiceNumber formats a human-readable invoice number from a
// template, the issue time and a ULID. {ULIDn} keeps the last n characters
// of the ULID, which are its random part.
func FormatInvoiceNumber(
	template string,
	issuedAt time.Time,
	id ulid.ULID,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}

	if id == (ulid.ULID{}) {
		return "", fmt.Errorf("invoice number id is empty")
	}

	out := template
	encoded := id.String()

	// Date tokens
	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))

	out = strings.ReplaceAll(out, "{ULID}", encoded)

	out = ulidPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := ulidPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 || width > len(encoded) {
			return m
		}

		return encoded[len(encoded)-width:]
	})

	// Final safety check: unresolved tokens
	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}

	return out, nil
}

// FormatAmount renders a whole-unit amount with dot thousand separators,
// e.g. "IDR 2.000.000".
func FormatAmount(currency string, amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return sign + b.String()
	}
	return currency + " " + sign + b.String()
}
