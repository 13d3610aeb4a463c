package sanitize_test

import (
	"testing"

	"movetrack/internal/sanitize"
)

func TestText(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"  João Silva ":            "João Silva",
		"<b>João</b> Silva":        "João Silva",
		"Tom & Jerry":              "Tom & Jerry",
		`<a href="x">Access</a> ok`: "Access ok",
		"&lt;b&gt;x":                "x",
		"&amp;lt;i&amp;gt;hi":       "hi",
		"a < b and c > d":           "a < b and c > d",
		"5<7 and 9>8":               "5<7 and 9>8",
		"a<b and c>d":               "ad",
	}
	for in, want := range cases {
		if got := sanitize.Text(in); got != want {
			t.Errorf("Text(%q) = %q, want %q", in, got, want)
		}
	}
}
