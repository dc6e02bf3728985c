// Package config loads neolinkd settings from a YAML file, applies
// NEOLINK_* environment overrides on top and validates the result.
//
// Validate reports every problem at once so a broken file can be fixed in
// one pass. Secrets such as the broker password and jwt_secret are best
// supplied through the environment:
//
//	NEOLINK_MQTT_PASSWORD=... neolinkd serve --config /etc/neolinkd/config.yaml
package config
