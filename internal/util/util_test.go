package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer[int](3)
	if got := r.Snapshot(); len(got) != 0 {
		t.Fatalf("empty snapshot = %v", got)
	}
	r.Push(1)
	r.Push(2)
	if got := r.Snapshot(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("snapshot = %v", got)
	}
	for i := 3; i <= 5; i++ {
		r.Push(i)
	}
	if got := r.Snapshot(); len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("wrapped snapshot = %v", got)
	}
	if got := r.Last(2); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("Last(2) = %v", got)
	}
	if got := r.Last(10); len(got) != 3 {
		t.Fatalf("Last(10) = %v", got)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"127.0.0.1:8790":           "http://127.0.0.1:8790",
		" localhost:8787/ ":        "http://localhost:8787",
		"https://api.example.com/": "https://api.example.com",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/data", "inbox"); got != filepath.Join("/data", "inbox") {
		t.Fatalf("relative = %q", got)
	}
	abs := filepath.Join(t.TempDir(), "x", "..", "y")
	if got := ResolvePath("/data", abs); got != filepath.Clean(abs) {
		t.Fatalf("absolute = %q", got)
	}
}

func TestWriteJSONFileCreatesDirs(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a", "b", "c.json")
	if err := WriteJSONFile(p, map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatal(err)
	}
}
