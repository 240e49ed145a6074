// Command warrend is a minimal standalone binary: it starts the daemon
// with an empty consumer registry so the binary builds and runs on its
// own, but every real deployment is expected to vendor cmd/warrend's
// NewCommand from its own main package and Add its descriptors before
// calling Execute.
package main

import (
	"fmt"
	"os"

	"github.com/warrenq/warren/consumer"
)

func main() {
	registry := consumer.NewRegistry()
	cc := NewCommand("warrend", registry)
	if err := cc.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
