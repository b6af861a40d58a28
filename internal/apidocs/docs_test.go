package apidocs

import (
	"encoding/json"
	"testing"
)

func TestDocIsValidJSONWithRoutes(t *testing.T) {
	doc, err := Doc()
	if err != nil {
		t.Fatalf("Doc: %v", err)
	}
	var parsed struct {
		Swagger string                     `json:"swagger"`
		Info    struct{ Title string }     `json:"info"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Swagger != "2.0" || parsed.Info.Title != "echo-reader API" {
		t.Fatalf("header = %+v", parsed)
	}
	for _, p := range []string{"/api/books", "/api/books/{id}/open", "/api/player/control", "/api/discuss/enter", "/session", "/api/tts"} {
		if _, ok := parsed.Paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
}
