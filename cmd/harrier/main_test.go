package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/domain"
)

func TestPrintBanner(t *testing.T) {
	cfg := domain.DefaultConfig()
	var buf bytes.Buffer
	printBanner(&buf, cfg, "v-test")
	out := buf.String()

	if !strings.Contains(out, "v-test") {
		t.Error("expected version in banner")
	}
	if !strings.Contains(out, "/accounts/{id}/ego          - One-hop neighbourhood") {
		t.Errorf("expected one-hop ego description, got:\n%s", out)
	}

	// Every advertised endpoint must be routed.
	routes := map[string]bool{}
	srv := api.NewServer(cfg.Server, nil, nil, nil, nil, nil, "v-test")
	err := chi.Walk(srv.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || (fields[0] != "GET" && fields[0] != "POST") {
			continue
		}
		path, _, _ := strings.Cut(fields[1], "?")
		if !routes[fields[0]+" "+path] {
			t.Errorf("banner lists %s %s but no route serves it", fields[0], path)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"WARN", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"verbose", "INFO"},
	}

	for _, tt := range tests {
		if got := logLevel(tt.in).String(); got != tt.want {
			t.Errorf("logLevel(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
