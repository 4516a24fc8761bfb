package main

import (
	"context"
	"slices"
	"strings"
	"testing"
)

func TestMDNSTXT(t *testing.T) {
	txt := mdnsTXT(&appConfig{backend: "spidev"})
	for _, want := range []string{"backend=spidev", "chip=mcp2518fd", "version=" + version, "commit=" + commit} {
		if !slices.Contains(txt, want) {
			t.Fatalf("TXT %v lacks %q", txt, want)
		}
	}
}

func TestMDNSInstance(t *testing.T) {
	if got := mdnsInstance(&appConfig{mdnsName: "bench"}); got != "bench" {
		t.Fatalf("instance = %q", got)
	}
	if got := mdnsInstance(&appConfig{}); !strings.HasPrefix(got, "mcp2518fd-gateway-") {
		t.Fatalf("instance = %q", got)
	}
}

func TestListenPort(t *testing.T) {
	for addr, want := range map[string]int{"[::]:20000": 20000, "127.0.0.1:1234": 1234, ":9": 9} {
		got, err := listenPort(addr)
		if err != nil || got != want {
			t.Fatalf("listenPort(%q) = %d, %v", addr, got, err)
		}
	}
	if _, err := listenPort("nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartMDNSDisabled(t *testing.T) {
	cleanup, err := startMDNS(context.Background(), &appConfig{}, 20000)
	if err != nil {
		t.Fatal(err)
	}
	cleanup()
}
