package main

import (
	"go.bbrapi.dev/runner/pkg/cmd/runner"
)

func main() {
	runner.Execute()
}
