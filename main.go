package main

import "github.com/avkuznecov/docnormalizer/internal/cli"

func main() {
	cli.Execute()
}
