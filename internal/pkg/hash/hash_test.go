package hash

import (
	"strings"
	"testing"
)

func TestSHA256(t *testing.T) {
	tests := []struct {
		input []byte
		want  string
	}{
		{
			[]byte("hello"),
			"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
		{
			[]byte(""),
			"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			got := SHA256(tt.input)
			if got != tt.want {
				t.Errorf("SHA256(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestSHA256String(t *testing.T) {
	got := SHA256String("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	if got != want {
		t.Errorf("SHA256String(hello) = %s, want %s", got, want)
	}
}

func TestKey(t *testing.T) {
	k1 := Key("run", "sort a list", "10")
	k2 := Key("run", "sort a list", "10")
	if k1 != k2 {
		t.Errorf("Key not deterministic: %s != %s", k1, k2)
	}

	if k1 == Key("run", "sort a list", "100") {
		t.Error("Key collision on different cutoff")
	}

	// Moving a boundary must change the key.
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key collision on shifted boundary")
	}

	if len(k1) != 64 {
		t.Errorf("Key length = %d, want 64", len(k1))
	}
	for _, c := range k1 {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("Key contains non-hex character: %c", c)
		}
	}
}

func BenchmarkSHA256(b *testing.B) {
	data := []byte("benchmark test data for hashing performance measurement")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SHA256(data)
	}
}

func BenchmarkKey(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Key("http://localhost:8080", "how to sort a list in python", "100")
	}
}
