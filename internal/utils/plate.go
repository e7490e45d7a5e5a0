package utils

import (
	"regexp"
	"strings"
)

var (
	// AAA999 (pre-2016) and AA999AA (Mercosur) for cars.
	carPlate = regexp.MustCompile(`^([A-Z]{3}[0-9]{3}|[A-Z]{2}[0-9]{3}[A-Z]{2})$`)
	// 999AAA (old) and A999AAA (Mercosur) for motorcycles.
	motoPlate = regexp.MustCompile(`^([0-9]{3}[A-Z]{3}|[A-Z][0-9]{3}[A-Z]{3})$`)
)

// NormalizePlate upper-cases and strips spaces, dashes and dots.
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case ' ', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidPlate reports whether plate (already normalized) is a known format.
func ValidPlate(plate string) bool {
	return carPlate.MatchString(plate) || motoPlate.MatchString(plate)
}
