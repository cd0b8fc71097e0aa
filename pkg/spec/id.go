package spec

import (
	"strings"
)

// servicesRoot is the source-tree subtree the Planner restricts its diff to.
const servicesRoot = "services/"

// ServiceID derives a service's stable id from its TOML file's path within
// the source tree: the "services/" prefix and ".toml" suffix are stripped,
// the result is lower-cased, and directory separators are kept as "/".
func ServiceID(path string) string {
	trimmed := strings.TrimPrefix(path, servicesRoot)
	trimmed = strings.TrimSuffix(trimmed, ".toml")
	return strings.ToLower(trimmed)
}

// IDTail returns the final slash-separated segment of a service id.
func IDTail(serviceID string) string {
	if i := strings.LastIndex(serviceID, "/"); i >= 0 {
		return serviceID[i+1:]
	}
	return serviceID
}

// Hostname computes a web-enabled service's external hostname from its id
// and its spec's web.base.
func Hostname(serviceID, base string) string {
	return IDTail(serviceID) + "." + base
}
