package util

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// French listing pages are full of NBSP/narrow-NBSP thousands separators,
// currency suffixes ("€/mois", "CC") and comma decimals. Everything numeric
// goes through here; failure to coerce yields nil, never an error.

var (
	priceRe   = regexp.MustCompile(`(\d(?:[\d  \x{00a0}\x{202f}.]*\d)?(?:,\d+)?)[\s\x{00a0}\x{202f}]*€`)
	surfaceRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)[\s\x{00a0}\x{202f}]*m²`)
	roomsRe   = regexp.MustCompile(`(\d+)\s*pièces?`)
	bedroomRe = regexp.MustCompile(`(\d+)\s*chambres?`)
	bathsRe   = regexp.MustCompile(`(\d+)\s*salles?\s+de\s+bain`)
	floorRe   = regexp.MustCompile(`Étage\s*(\d+)\s*/\s*(\d+)`)
	postalRe  = regexp.MustCompile(`\b(\d{5})\b`)
)

// CleanText collapses whitespace, including the non-breaking spaces French
// sites use inside numbers.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// ParsePrice extracts a monthly amount from raw price text: "1 234 €" -> 1234,
// "500€/mois" -> 500. Text without a parsable amount ("Prix sur demande")
// yields nil.
func ParsePrice(raw string) *float64 {
	m := priceRe.FindStringSubmatch(raw)
	if m == nil {
		// some JSON payloads hand back a bare number without the € sign
		return parseAmount(CleanText(raw))
	}
	return parseAmount(m[1])
}

func parseAmount(s string) *float64 {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	// "1.234,56" and "1 234,56" both mean 1234.56
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// ParseSurface extracts a surface in m² from free text ("Studio 24,5 m² ...").
func ParseSurface(raw string) *float64 {
	m := surfaceRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// ParseRooms extracts "3 pièces" -> 3.
func ParseRooms(raw string) *int {
	return matchInt(roomsRe, raw)
}

// ParseBedrooms extracts "2 chambres" -> 2.
func ParseBedrooms(raw string) *int {
	return matchInt(bedroomRe, raw)
}

// ParseBaths extracts "1 salle de bain" -> 1.
func ParseBaths(raw string) *int {
	return matchInt(bathsRe, raw)
}

// ParseFloor extracts "Étage 2/5" -> (2, 5).
func ParseFloor(raw string) (floor, total *int) {
	m := floorRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}
	f, _ := strconv.Atoi(m[1])
	t, _ := strconv.Atoi(m[2])
	return &f, &t
}

// ParsePostalCode finds the first 5-digit postal code in free text.
func ParsePostalCode(raw string) *string {
	m := postalRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	return &m[1]
}

func matchInt(re *regexp.Regexp, raw string) *int {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// AbsoluteURL resolves href against base when the source emits relative links.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
