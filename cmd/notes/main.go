package main

import (
	"os"

	"github.com/wonny/notes/backend/cmd/notes/commands"
)

// main is the entry point for the notes CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/notes [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
