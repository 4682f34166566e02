package mcphost

import (
	"fmt"
	"strings"
)

// ParseServerSpecs parses the "name=transport:target" entries from
// config.Config.MCPServers into ServerConfigs. For stdio transports,
// target is the command line; for streamable_http, target is the URL.
func ParseServerSpecs(specs []string) ([]ServerConfig, error) {
	out := make([]ServerConfig, 0, len(specs))
	for _, spec := range specs {
		cfg, err := parseOneSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func parseOneSpec(spec string) (ServerConfig, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" {
		return ServerConfig{}, fmt.Errorf("mcphost: malformed server spec %q, want name=transport:target", spec)
	}
	transport, target, ok := strings.Cut(rest, ":")
	if !ok || target == "" {
		return ServerConfig{}, fmt.Errorf("mcphost: malformed server spec %q, want name=transport:target", spec)
	}

	switch Transport(transport) {
	case TransportStdio:
		return ServerConfig{Name: name, Transport: TransportStdio, Command: target}, nil
	case TransportStreamableHTTP:
		return ServerConfig{Name: name, Transport: TransportStreamableHTTP, URL: target}, nil
	default:
		return ServerConfig{}, fmt.Errorf("mcphost: unknown transport %q in spec %q", transport, spec)
	}
}
