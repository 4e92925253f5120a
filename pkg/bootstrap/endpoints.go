package bootstrap

import (
	"github.com/vnykmshr/cacheboot/pkg/settings"
)

// Endpoints returns the configured cache server endpoints from redis.servers.
// A mapping contributes its keys ("host:port" => bin), a sequence its
// string items.
func Endpoints(tree *settings.Tree) []string {
	v, _ := tree.Lookup("redis", "servers")
	switch servers := v.(type) {
	case *settings.Tree:
		return servers.Keys()
	case []any:
		out := make([]string, 0, len(servers))
		for _, item := range servers {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// hasServers reports whether redis.servers holds at least one entry
func hasServers(tree *settings.Tree) bool {
	v, _ := tree.Lookup("redis", "servers")
	switch servers := v.(type) {
	case *settings.Tree:
		return servers.Len() > 0
	case []any:
		return len(servers) > 0
	default:
		return false
	}
}
