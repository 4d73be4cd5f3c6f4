package version

import "strings"

// Version information set by build flags
// Set using -ldflags "-X go.bbrapi.dev/runner/pkg/version.version=v1.2.3"
var version = "unknown"

func String() string {
	return version
}

func UserAgent() string {
	s := strings.Builder{}
	s.WriteString("BBR-Runner/")
	if v := String(); v != "" {
		s.WriteString(v)
	} else {
		s.WriteString("Dirty")
	}
	return s.String()
}
