package main

import (
	"testing"
	"time"
)

func TestEnvName(t *testing.T) {
	if got := envName("log-metrics-interval"); got != "MCP2518FD_GATEWAY_LOG_METRICS_INTERVAL" {
		t.Fatalf("envName = %s", got)
	}
}

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := validConfig()
	t.Setenv("MCP2518FD_GATEWAY_SPI_SPEED", "20000000")
	t.Setenv("MCP2518FD_GATEWAY_MDNS_ENABLE", "true")
	t.Setenv("MCP2518FD_GATEWAY_ECHO", "off")
	t.Setenv("MCP2518FD_GATEWAY_POLL_INTERVAL", "2ms")
	t.Setenv("MCP2518FD_GATEWAY_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("MCP2518FD_GATEWAY_CAN_IF", "vcan0")
	t.Setenv("MCP2518FD_GATEWAY_BACKEND", " spidev ")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.spiSpeed != 20_000_000 {
		t.Fatalf("expected spi speed override, got %d", base.spiSpeed)
	}
	if !base.mdnsEnable || base.echo {
		t.Fatalf("booleans: mdns=%v echo=%v", base.mdnsEnable, base.echo)
	}
	if base.pollInterval != 2*time.Millisecond {
		t.Fatalf("expected pollInterval 2ms got %v", base.pollInterval)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.canIf != "vcan0" || base.backend != "spidev" {
		t.Fatalf("strings: can-if=%q backend=%q", base.canIf, base.backend)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 115200}
	t.Setenv("MCP2518FD_GATEWAY_BAUD", "230400")
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud unchanged 115200 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	cases := map[string]string{
		"MCP2518FD_GATEWAY_HUB_BUFFER":    "notint",
		"MCP2518FD_GATEWAY_MAX_CLIENTS":   "-1",
		"MCP2518FD_GATEWAY_POLL_INTERVAL": "soon",
		"MCP2518FD_GATEWAY_MDNS_ENABLE":   "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			base := validConfig()
			t.Setenv(k, v)
			if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
				t.Fatalf("expected error for %s=%s", k, v)
			}
		})
	}
}
