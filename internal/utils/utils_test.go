package utils

import "testing"

func TestNormalizeVehicleClass(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"car", "car", true},
		{" SUV ", "car", true},
		{"camioneta", "car", true},
		{"moto", "motorcycle", true},
		{"Van", "van", true},
		{"truck", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeVehicleClass(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("NormalizeVehicleClass(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizePlate(t *testing.T) {
	cases := map[string]string{
		"ab 123 cd": "AB123CD",
		"abc-123":   "ABC123",
		"a.123.bcd": "A123BCD",
		"ABC123":    "ABC123",
	}
	for in, want := range cases {
		if got := NormalizePlate(in); got != want {
			t.Errorf("NormalizePlate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidPlate(t *testing.T) {
	cases := []struct {
		plate string
		want  bool
	}{
		{"ABC123", true},
		{"AB123CD", true},
		{"A123BCD", true},
		{"123ABC", true},
		{"AB12CD", false},
		{"ABCD123", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidPlate(c.plate); got != c.want {
			t.Errorf("ValidPlate(%q) = %v, want %v", c.plate, got, c.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"08:30", 510, true},
		{"7:05", 425, true},
		{"24:00", 1440, true},
		{"24:01", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"12", 0, false},
	}
	for _, c := range cases {
		got, err := ParseClock(c.in)
		if (err == nil) != c.ok || got != c.want {
			t.Errorf("ParseClock(%q) = %d, %v", c.in, got, err)
		}
	}
	if FormatClock(425) != "07:05" {
		t.Errorf("FormatClock(425) = %s", FormatClock(425))
	}
}
