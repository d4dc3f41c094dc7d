package main

import "identity-reconciliation/internal/cli"

func main() {
	cli.Execute()
}
