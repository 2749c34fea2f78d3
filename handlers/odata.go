package handlers

import (
	"regexp"
	"strings"
)

// odataCallRe matches the "/api/v2/Name(args)" and "/api/v2/Name"
// shapes every NuGet v2 OData function-import endpoint uses — Packages,
// Packages(), Packages(Id='x',Version='y'), FindPackagesById(id='x'),
// Search(searchTerm='x',includePrerelease=true), GetUpdates(...).
// Grounded on package.rs's PKG_DESC regex, generalized to every callable
// name instead of one regex per view, since spec.md §6 notes plain
// routers can't parse the parenthesized form at all.
var odataCallRe = regexp.MustCompile(`^/api/v2/([A-Za-z]+)(?:\((.*)\))?$`)

// parseODataArgs splits an OData function-import argument list
// ("Id='x',Version='y'" or "searchTerm='cli',includePrerelease=true")
// into a key/value map, trimming single-quotes from quoted values.
// Argument values never contain commas in the endpoints this server
// serves, so a naive top-level split is sufficient.
func parseODataArgs(args string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(args) == "" {
		return out
	}
	for _, part := range strings.Split(args, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		value = strings.Trim(value, "'")
		out[key] = value
	}
	return out
}
