// internal/app/helpers.go
package app

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// NormalizeLocalViewer ensures the viewer only binds to localhost
// and returns the listen addr and the browser URL.
func NormalizeLocalViewer(cfgAddr string) (listenAddr string, url string) {
	a := strings.TrimSpace(cfgAddr)

	if strings.HasPrefix(a, ":") {
		a = "127.0.0.1" + a
	}
	if strings.HasPrefix(a, "0.0.0.0:") {
		a = "127.0.0.1:" + strings.TrimPrefix(a, "0.0.0.0:")
	}
	return a, "http://" + a
}

func WaitTCP(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", addr)
}

func logBanner(dataDir, cfgPath string) {
	log.Println("────────────────────────────────────────")
	log.Println("echo-reader")
	log.Printf(" Data folder : %s", dataDir)
	log.Printf(" Config file : %s", cfgPath)
	log.Println("────────────────────────────────────────")
}
