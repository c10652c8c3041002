package extraction

import (
	"regexp"
	"unicode/utf8"
)

// rule is one step of a precedence list: the first capture group of pattern is the
// candidate token, accept validates it. With all set, every match on a line is a
// candidate; otherwise only the first one is.
type rule struct {
	name    string
	pattern *regexp.Regexp
	all     bool
	accept  func(token string) bool
}

// firstAccepted runs rules in order. A rule is tried against every line before the next
// rule is consulted, and the first accepted token wins.
func firstAccepted(rules []rule, lines []string) (string, bool) {
	for _, r := range rules {
		for _, line := range lines {
			for _, m := range r.candidates(line) {
				if r.accept == nil || r.accept(m) {
					return m, true
				}
			}
		}
	}
	return "", false
}

func (r rule) candidates(line string) []string {
	if !r.all {
		m := r.pattern.FindStringSubmatch(line)
		if len(m) < 2 || m[1] == "" {
			return nil
		}
		return []string{m[1]}
	}

	var out []string
	for _, m := range r.pattern.FindAllStringSubmatch(line, -1) {
		if len(m) >= 2 && m[1] != "" {
			out = append(out, m[1])
		}
	}
	return out
}

func minLength(n int) func(string) bool {
	return func(s string) bool {
		return utf8.RuneCountInString(s) >= n
	}
}

var (
	reDocLabeled = regexp.MustCompile(`(?i)\b(?:albar[aá]n|factura|n[uú]mero|doc(?:ument(?:o)?)?|ref(?:erencia)?|invoice|bill)\b[\s:.#]*([a-z0-9\-/]+)`)
	reDocNumSign = regexp.MustCompile(`(?i)\bn(?:[º°]|o\.)\s*:?\s*([a-z0-9\-/]+)`)
	reDocLeading = regexp.MustCompile(`(?i)^([0-9]{4,}[a-z0-9\-/]*)`)
	reDocLetters = regexp.MustCompile(`(?i)([a-z]+[0-9]{3,})`)

	reAmountLabeled   = regexp.MustCompile(`(?i)(?:total|importe|suma|amount|due)[\s:]*([0-9]+[.,][0-9]{2})`)
	reAmountSymbolPre = regexp.MustCompile(`(?i)(?:€|eur|euro)\s*([0-9]+[.,][0-9]{2})`)
	reAmountSymbolPst = regexp.MustCompile(`(?i)([0-9]+[.,][0-9]{2})\s*(?:€|eur|euro)`)
	reAmountBare      = regexp.MustCompile(`(?:^|\s)([0-9]{1,4}[.,][0-9]{2})(?:\s|$)`)

	reDateSlash   = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
	reDateDash    = regexp.MustCompile(`(\d{1,2}-\d{1,2}-\d{4})`)
	reDateISO     = regexp.MustCompile(`(\d{4}-\d{1,2}-\d{1,2})`)
	reDateLabeled = regexp.MustCompile(`(?i)(?:fecha|date)[\s:]*(\d{1,2}/\d{1,2}/\d{4})`)

	reTaxLabeled = regexp.MustCompile(`(?:cif|nif|vat|tax)[\s:]*([a-z0-9\-]{8,12})`)
	reTaxLetter  = regexp.MustCompile(`([a-z]\d{8})`)
	reTaxDigits  = regexp.MustCompile(`(\d{8}[a-z])`)
)

// Supplier exclusions: a line matching any of these is not a company name.
var supplierExclusions = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}`),
	regexp.MustCompile(`^\d+[.,]\d+`),
	regexp.MustCompile(`(?i)(?:total|\biva\b|\btax\b)`),
	regexp.MustCompile(`(?i)(?:calle|street|avenue|avenida|plaza)`),
	regexp.MustCompile(`^\d{5}`),
	regexp.MustCompile(`(?i)^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`),
}

var (
	reLetterRun = regexp.MustCompile(`[a-zA-Z]{3,}`)
	reDigit     = regexp.MustCompile(`\d`)

	// header labels and accounting lines carry digits and words but are not items
	reItemLabelPrefix   = regexp.MustCompile(`(?i)^(?:fecha|date|total|subtotal|iva|cif|nif|albar[aá]n|factura|invoice|n[º°])`)
	reItemContactPrefix = regexp.MustCompile(`(?i)^(?:calle|street|tel|email|www)`)
)

func documentNumberRules(minLen int) []rule {
	accept := minLength(minLen)
	return []rule{
		{name: "labeled", pattern: reDocLabeled, accept: accept},
		{name: "number-sign", pattern: reDocNumSign, accept: accept},
		{name: "leading-digits", pattern: reDocLeading, accept: accept},
		{name: "letters-digits", pattern: reDocLetters, accept: accept},
	}
}

func amountRules(inRange func(string) bool) []rule {
	return []rule{
		{name: "labeled", pattern: reAmountLabeled, all: true, accept: inRange},
		{name: "currency-before", pattern: reAmountSymbolPre, all: true, accept: inRange},
		{name: "currency-after", pattern: reAmountSymbolPst, all: true, accept: inRange},
		{name: "bare", pattern: reAmountBare, all: true, accept: inRange},
	}
}

func dateRules() []rule {
	return []rule{
		{name: "slash", pattern: reDateSlash},
		{name: "dash", pattern: reDateDash},
		{name: "iso", pattern: reDateISO},
		{name: "labeled", pattern: reDateLabeled},
	}
}

// taxIDRules run against the lowercased document as a single string
func taxIDRules() []rule {
	return []rule{
		{name: "labeled", pattern: reTaxLabeled},
		{name: "letter-digits", pattern: reTaxLetter},
		{name: "digits-letter", pattern: reTaxDigits},
	}
}
