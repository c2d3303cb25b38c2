package sensor

import (
	"strconv"
	"strings"
)

// Topics maps readings to MQTT topics
type Topics struct {
	// Prefix is prepended to every topic, without trailing slash
	Prefix string

	// Names gives friendly names to sensor addresses
	Names map[Address]string
}

// Name returns the configured name for addr, or its hex form
func (t Topics) Name(addr Address) string {
	if name, ok := t.Names[addr]; ok && name != "" {
		return name
	}
	return addr.String()
}

// Topic returns prefix/<name>/<type>/<instance>
func (t Topics) Topic(r Reading) string {
	parts := make([]string, 0, 4)
	if prefix := strings.Trim(t.Prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, t.Name(r.Address), r.Type.String(), strconv.Itoa(int(r.Instance)))
	return strings.Join(parts, "/")
}
