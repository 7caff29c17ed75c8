// Package main is the entry point for the judge server and CLI.
//
// Usage:
//
//	judge-server serve [flags]
//	judge-server run <source-file> --lang <name>
//	judge-server languages
package main

import "github.com/akshayaggarwal99/judge/internal/cli"

func main() {
	cli.Execute()
}
