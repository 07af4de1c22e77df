package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"-12.34", "-12.34", true},
		{"+12.34", "12.34", true},
		{"12,34", "12.34", true},
		{"1,234.56", "1234.56", true},
		{" -0.01 ", "-0.01", true},
		{".5", "0.5", true},
		{"0", "0", true},
		{"", "", false},
		{"-", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"$12", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got.String(), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got.String())
		}
	}
}

func TestFormatAmount(t *testing.T) {
	d, _ := ParseAmount("-50")
	if got := FormatAmount(d); got != "-50.00" {
		t.Fatalf("FormatAmount = %q", got)
	}
}
