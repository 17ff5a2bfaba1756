// Command rowguard serves permission-checked access to schema-driven tables
// and provides the operator commands around it.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
