package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	mdnsServiceType = "_dronepanel._tcp"
	mdnsDomain      = "local."
	mdnsFallback    = "dronepanel"
)

// startMDNS advertises the MQTT listener on the local network so producers can
// find the server without configuration. The HTTP port travels in TXT records.
func (a *App) startMDNS(port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid port %d", port)
	}

	a.stopMDNS()

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = mdnsFallback
	}

	instance := sanitizeMDNSInstance(fmt.Sprintf("Drone Panel Telemetry (%s)", hostname))
	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, port, mdnsTXT(port, a.cfg.HTTPPort, hostname), nil)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}

	a.mdns = server
	a.logger.Info("mDNS advertisement started", "instance", instance, "service", mdnsServiceType, "port", port)
	return nil
}

func (a *App) stopMDNS() {
	if a.mdns == nil {
		return
	}

	a.mdns.Shutdown()
	a.logger.Info("mDNS advertisement stopped")
	a.mdns = nil
}

func mdnsTXT(mqttPort, httpPort int, hostname string) []string {
	host := sanitizeMDNSHost(hostname)
	if !strings.Contains(host, ".") {
		host += ".local"
	}
	return []string{
		fmt.Sprintf("mqtt_port=%d", mqttPort),
		fmt.Sprintf("http_port=%d", httpPort),
		"proto=v1",
		"host=" + host,
	}
}

func sanitizeMDNSInstance(name string) string {
	cleaned := strings.NewReplacer("\n", " ", "\r", " ", ".", " ", "_", " ").Replace(strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "Drone Panel Telemetry"
	}
	return truncateRunes(cleaned, 63)
}

// sanitizeMDNSHost returns a lower-case DNS label of at most 63 characters.
func sanitizeMDNSHost(name string) string {
	cleaned := strings.TrimSpace(strings.ToLower(name))
	cleaned = strings.NewReplacer(" ", "-", "_", "-", "\n", "", "\r", "").Replace(cleaned)
	if cleaned == "" {
		cleaned = mdnsFallback
	}
	return truncateRunes(cleaned, 63)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
