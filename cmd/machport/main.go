package main

import (
	"fmt"
	"os"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version":
			fmt.Printf("machport %s\n", Version)
			fmt.Println("Make macOS application bundles carry their own libraries")
			return
		case "--help", "-h":
			printFixHelp()
			return
		}
	}

	code, err := runFix(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
