package module

import "strings"

// Section is one persisted configuration block of a module.
type Section struct {
	Module string
	Name   string
	// Server is the storage key of the server ("ip_port"), empty for shared sections.
	Server string
	Shared bool
	// Value points at the module's field the section is decoded into.
	Value any
}

// SectionStore persists configuration sections.
type SectionStore interface {
	// Load decodes the stored section into s.Value. A section that was never
	// stored is created from the current value.
	Load(s *Section) error
	// Save writes s.Value.
	Save(s *Section) error
}

// ServerKey turns an "ip:port" address into the key used for per-server storage.
func ServerKey(addr string) string {
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return addr
	}
	return strings.Trim(addr[:i], "[]") + "_" + addr[i+1:]
}

// ParseConfigTag reports whether tag marks a config section and whether it is shared.
func ParseConfigTag(tag string) (config, shared bool) {
	parts := strings.Split(tag, ",")
	if strings.TrimSpace(parts[0]) != "config" {
		return false, false
	}
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "shared" {
			shared = true
		}
	}
	return true, shared
}
