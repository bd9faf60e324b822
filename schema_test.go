package nativecql

import "testing"

func TestEscapeCQLString(t *testing.T) {
	if got := escapeCQLString("o'brien"); got != "o''brien" {
		t.Fatalf("got %q", got)
	}
	if got := escapeCQLString("plain"); got != "plain" {
		t.Fatalf("got %q", got)
	}
}
