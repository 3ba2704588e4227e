package main

import (
	"fmt"
	"os"

	"videowall/internal/wallctl"
)

func main() {
	if err := wallctl.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
