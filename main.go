// Package main is the entry point for the avbstream AVB talker and listener.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/avbstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
