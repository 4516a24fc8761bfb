package main

import (
	"log/slog"

	"github.com/kstaniek/go-mcp2518fd/internal/hub"
)

var hubPolicies = map[string]hub.BackpressurePolicy{"drop": hub.PolicyDrop, "kick": hub.PolicyKick}

func initHub(cfg *appConfig, l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = cfg.hubBuffer
	policy, ok := hubPolicies[cfg.hubPolicy]
	if !ok {
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
		policy, cfg.hubPolicy = hub.PolicyDrop, "drop"
	}
	h.Policy = policy
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("hub_config", "policy", cfg.hubPolicy, "buffer", h.OutBufSize)
	return h
}
