package normalize

import "testing"

func TestNorm(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain upper", "leche", "LECHE"},
		{"accents", "Salchichón Ñandú", "SALCHICHON NANDU"},
		{"mixed case with punctuation", "Coca-Cola, 1.5L!", "COCACOLA 15L"},
		{"collapses internal whitespace", "Ruta   Norte\t\tGrande", "RUTA NORTE GRANDE"},
		{"trims leading and trailing", "  Leche  ", "LECHE"},
		{"umlaut u", "Müller", "MULLER"},
		{"cedilla", "Limão Açaí", "LIMAO ACAI"},
		{"empty", "", ""},
		{"only punctuation", "!!!---???", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Norm(c.in)
			if got != c.want {
				t.Errorf("Norm(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestNormIdempotent(t *testing.T) {
	inputs := []string{"Leche Entera 1L", "Ruta Norte", "Süper Uñó", "123 ABC !!"}
	for _, in := range inputs {
		once := Norm(in)
		twice := Norm(once)
		if once != twice {
			t.Errorf("Norm not idempotent for %q: Norm(s)=%q, Norm(Norm(s))=%q", in, once, twice)
		}
	}
}
