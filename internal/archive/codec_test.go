package archive

import "testing"

func TestEncodeLineSanitizesDelimiter(t *testing.T) {
	line := EncodeLine("2025-01-02 03:04:05", "req-1", "alice|bob", "Fire|fox")
	want := "2025-01-02 03:04:05|req-1|alice/bob|Fire/fox"
	if line != want {
		t.Fatalf("encoded line mismatch: got %q, want %q", line, want)
	}
}

func TestEncodeLineSanitizesNewlines(t *testing.T) {
	line := EncodeLine("a", "multi\nline\rvalue")
	want := "a|multi line value"
	if line != want {
		t.Fatalf("encoded line mismatch: got %q, want %q", line, want)
	}
}

func TestDecodeLineRoundTrip(t *testing.T) {
	fields := []string{"2025-01-02 03:04:05", "req-1", "alice", "Chrome on mac", "1.2.3.4", "pending"}
	decoded := DecodeLine(EncodeLine(fields...) + "\n")
	if len(decoded) != len(fields) {
		t.Fatalf("expected %d fields, got %d", len(fields), len(decoded))
	}
	for i := range fields {
		if decoded[i] != fields[i] {
			t.Errorf("field %d mismatch: got %q, want %q", i, decoded[i], fields[i])
		}
	}
}

func TestDecodeLineEmptyFields(t *testing.T) {
	decoded := DecodeLine("a||c")
	if len(decoded) != 3 || decoded[1] != "" {
		t.Fatalf("expected empty middle field, got %v", decoded)
	}
}
