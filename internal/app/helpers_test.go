package app

import (
	"net"
	"testing"
	"time"
)

func TestNormalizeLocalViewer(t *testing.T) {
	cases := []struct{ in, addr, url string }{
		{":8790", "127.0.0.1:8790", "http://127.0.0.1:8790"},
		{"0.0.0.0:9000", "127.0.0.1:9000", "http://127.0.0.1:9000"},
		{" 127.0.0.1:1234 ", "127.0.0.1:1234", "http://127.0.0.1:1234"},
	}
	for _, c := range cases {
		addr, url := NormalizeLocalViewer(c.in)
		if addr != c.addr || url != c.url {
			t.Errorf("NormalizeLocalViewer(%q) = %q, %q", c.in, addr, url)
		}
	}
}

func TestWaitTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := WaitTCP(addr, time.Second); err != nil {
		t.Fatalf("open port: %v", err)
	}
	ln.Close()
	if err := WaitTCP(addr, 300*time.Millisecond); err == nil {
		t.Fatal("closed port reported open")
	}
}
