// Command mcpserver runs the Streamable HTTP transport as a standalone
// process, wiring the session registry, event store, stream manager,
// dispatcher and middleware chain behind a chi router, adapted from the
// teacher's sibling example (Tutu-Engine-tutuengine's cmd/tutu/main.go +
// internal/cli) since the teacher itself ships a library, not a binary.
package main

import (
	"fmt"
	"os"

	"github.com/mutablelogic/mcp-streamhttp/cmd/mcpserver/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
