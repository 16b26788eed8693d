package api

import (
	"net/http"
	"time"

	"milkrun/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"addr":            c.Server.Addr,
			"authMode":        c.Auth.Mode,
			"rateRps":         c.Server.RateRPS,
			"rateBurst":       c.Server.RateBurst,
			"trackingPrefix":  c.Dispatch.TrackingPrefix,
			"depot":           c.Depot(),
			"capacities":      c.Capacities(),
			"hasDatabaseUrl":  c.Database.URL != "",
			"hasRedisUrl":     c.Redis.URL != "",
			"hasAmqpUrl":      c.AMQP.URL != "",
			"hasMqttBroker":   c.MQTT.Broker != "",
			"hasWebhookUrl":   c.Webhook.URL != "",
			"eventStreamsOn":  s.Broker != nil,
			"defaultRadiusKm": c.Optimizer.DefaultRadiusKm,
		},
	}
	writeJSON(w, http.StatusOK, info)
}
