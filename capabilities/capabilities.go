// Package capabilities computes the truthful capability object the server
// advertises in its initialize response, derived from which optional
// features are actually wired up rather than a hardcoded literal.
package capabilities

import "github.com/mutablelogic/mcp-streamhttp/session"

// Registrar is the subset of rpc.Dispatcher capabilities needs: the set of
// currently registered method names.
type Registrar interface {
	Methods() []string
}

// Options toggles optional server-side features that aren't derivable purely
// from registered methods (e.g. whether resource subscriptions are backed by
// a live event stream at all).
type Options struct {
	ResourcesSubscribe bool
	Logging            bool
}

var toolsListChangedMethods = map[string]bool{
	"tools/list": true,
}

var resourcesListChangedMethods = map[string]bool{
	"resources/list": true,
}

var promptsListChangedMethods = map[string]bool{
	"prompts/list": true,
}

// Compute builds a session.Capabilities snapshot from the dispatcher's
// registered methods and explicit feature Options.
func Compute(registrar Registrar, opts Options) session.Capabilities {
	methods := make(map[string]bool, len(registrar.Methods()))
	for _, m := range registrar.Methods() {
		methods[m] = true
	}
	return session.Capabilities{
		ToolsListChanged:     hasAny(methods, toolsListChangedMethods),
		ResourcesSubscribe:   opts.ResourcesSubscribe && hasAny(methods, resourcesListChangedMethods),
		ResourcesListChanged: hasAny(methods, resourcesListChangedMethods),
		PromptsListChanged:   hasAny(methods, promptsListChangedMethods),
		Logging:              opts.Logging,
	}
}

func hasAny(methods map[string]bool, want map[string]bool) bool {
	for m := range want {
		if methods[m] {
			return true
		}
	}
	return false
}
