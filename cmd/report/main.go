package main

import "github.com/domlin520/Website-analysis/internal/cli"

func main() {
	cli.Execute()
}
