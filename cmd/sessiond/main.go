// Command sessiond serves the goSession HTTP API: login, refresh rotation,
// revoke-all and the guarded demo pages.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
