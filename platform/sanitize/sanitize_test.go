package sanitize

import "testing"

func TestLineCollapsesNewlines(t *testing.T) {
	got := Line("  Kunde <b>möchte</b>\nRückruf\r\n morgen ")
	want := "Kunde möchte Rückruf morgen"
	if got != want {
		t.Fatalf("Line() = %q, want %q", got, want)
	}
}

func TestStripHTMLRemovesEncodedTags(t *testing.T) {
	got := StripHTML("a &lt;script&gt;x&lt;/script&gt; b")
	if got != "a x b" {
		t.Fatalf("StripHTML() = %q", got)
	}
}
