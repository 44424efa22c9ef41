package util

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1 234 €", 1234, true},
		{"500€/mois", 500, true},
		{"1 200 € CC", 1200, true},
		{"1 450 €", 1450, true},
		{"1.234,56 €", 1234.56, true},
		{"780,50 €", 780.50, true},
		{"650", 650, true},
		{"Prix sur demande", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got := ParsePrice(tt.raw)
		if tt.ok {
			if got == nil {
				t.Errorf("ParsePrice(%q) = nil; want %.2f", tt.raw, tt.want)
			} else if *got != tt.want {
				t.Errorf("ParsePrice(%q) = %.2f; want %.2f", tt.raw, *got, tt.want)
			}
			continue
		}
		if got != nil {
			t.Errorf("ParsePrice(%q) = %.2f; want nil", tt.raw, *got)
		}
	}
}

func TestParseSurface(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"Studio 24,5 m² centre ville", 24.5, true},
		{"T2 de 45 m²", 45, true},
		{"surface inconnue", 0, false},
	}

	for _, tt := range tests {
		got := ParseSurface(tt.raw)
		if tt.ok {
			if got == nil || *got != tt.want {
				t.Errorf("ParseSurface(%q) = %v; want %.1f", tt.raw, got, tt.want)
			}
			continue
		}
		if got != nil {
			t.Errorf("ParseSurface(%q) = %.1f; want nil", tt.raw, *got)
		}
	}
}

func TestParseRoomsBedroomsBaths(t *testing.T) {
	text := "Appartement 3 pièces, 2 chambres, 1 salle de bain"
	if got := ParseRooms(text); got == nil || *got != 3 {
		t.Errorf("ParseRooms = %v; want 3", got)
	}
	if got := ParseBedrooms(text); got == nil || *got != 2 {
		t.Errorf("ParseBedrooms = %v; want 2", got)
	}
	if got := ParseBaths(text); got == nil || *got != 1 {
		t.Errorf("ParseBaths = %v; want 1", got)
	}
	if got := ParseRooms("maison de charme"); got != nil {
		t.Errorf("ParseRooms on text without rooms = %v; want nil", got)
	}
}

func TestParseFloor(t *testing.T) {
	f, total := ParseFloor("Étage 2/5 avec ascenseur")
	if f == nil || total == nil || *f != 2 || *total != 5 {
		t.Errorf("ParseFloor = (%v, %v); want (2, 5)", f, total)
	}
	f, total = ParseFloor("rez-de-chaussée")
	if f != nil || total != nil {
		t.Errorf("ParseFloor on no match = (%v, %v); want (nil, nil)", f, total)
	}
}

func TestParsePostalCode(t *testing.T) {
	if got := ParsePostalCode("Rennes (35000) proche métro"); got == nil || *got != "35000" {
		t.Errorf("ParsePostalCode = %v; want 35000", got)
	}
	if got := ParsePostalCode("Rennes centre"); got != nil {
		t.Errorf("ParsePostalCode on no match = %q; want nil", *got)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"  1 234 €  /  mois ", "1 234 € / mois"},
		{"a\n\tb", "a b"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.raw); got != tt.want {
			t.Errorf("CleanText(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://www.seloger.com", "/annonces/123.htm", "https://www.seloger.com/annonces/123.htm"},
		{"https://www.seloger.com", "https://cdn.seloger.com/img.jpg", "https://cdn.seloger.com/img.jpg"},
		{"https://www.seloger.com", "", ""},
	}
	for _, tt := range tests {
		if got := AbsoluteURL(tt.base, tt.href); got != tt.want {
			t.Errorf("AbsoluteURL(%q, %q) = %q; want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"HTTPS://WWW.Leboncoin.fr/ad/locations/123?utm_source=x&b=2&a=1#photos", "https://www.leboncoin.fr/ad/locations/123?a=1&b=2"},
		{"https://example.com/path/", "https://example.com/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.raw); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}
