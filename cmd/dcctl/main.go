// Command dcctl loads a decision service file locally and either runs a
// decision against it or prints its OpenAPI document.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
