// Package format holds the pure display projections applied to backend
// rows: document masks (CPF/CNPJ/CEP), zero padding, currency and date
// rendering, and legend color classing. Nothing here performs I/O.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Digit lengths of the Brazilian identifiers handled below.
const (
	CPFDigits  = 11
	CNPJDigits = 14
	CEPDigits  = 8
)

// Digits strips everything but decimal digits from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CPFMask renders an 11-digit CPF as 000.000.000-00. Inputs with a
// different digit count are returned unmasked.
func CPFMask(s string) string {
	d := Digits(s)
	if len(d) != CPFDigits {
		return s
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

// CNPJMask renders a 14-digit CNPJ as 00.000.000/0000-00. Inputs with a
// different digit count are returned unmasked.
func CNPJMask(s string) string {
	d := Digits(s)
	if len(d) != CNPJDigits {
		return s
	}
	return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
}

// CEPMask renders an 8-digit CEP as 00000-000. Inputs with a different
// digit count are returned unmasked.
func CEPMask(s string) string {
	d := Digits(s)
	if len(d) != CEPDigits {
		return s
	}
	return d[0:5] + "-" + d[5:8]
}

// PersonCodeMask picks the CPF or CNPJ mask based on the entity type
// ("F" for pessoa física, "J" for jurídica). Unknown types pass through.
func PersonCodeMask(typeEntity, code string) string {
	switch typeEntity {
	case "F":
		return CPFMask(code)
	case "J":
		return CNPJMask(code)
	default:
		return code
	}
}

// Pad zero-pads the numeric content of s to the given width. Non-numeric
// input is returned unchanged.
func Pad(s string, width int) string {
	if s == "" {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		return s
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// Currency renders a value as Brazilian reais: R$ 1.234,56.
func Currency(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int64(v)
	cents := int64((v-float64(whole))*100 + 0.5)
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := fmt.Sprintf("R$ %s,%02d", b.String(), cents)
	if neg {
		return "-" + out
	}
	return out
}

// Date layouts accepted from the backend, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Date renders a backend timestamp as dd/mm/yyyy. Unparseable input is
// returned unchanged so a malformed value stays visible rather than
// silently vanishing.
func Date(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return s
}

// DateTime renders a backend timestamp as dd/mm/yyyy hh:mm.
func DateTime(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02/01/2006 15:04")
		}
	}
	return s
}

// defaultLegendClass is used when a status code has no configured legend.
const defaultLegendClass = "text-black"

// LegendClass maps a status code to its display class through the
// entity's legend table.
func LegendClass(statusCode string, legends map[string]string) string {
	if class, ok := legends[statusCode]; ok {
		return class
	}
	return defaultLegendClass
}
