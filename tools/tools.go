//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run via `go run` or installed with `go install` and are not
// tracked in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the ports interfaces
//   Run: go generate ./internal/mocks/...
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.uber.org/mock in go.mod)
//
// Air - live reload for cmd/portal during development
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: BACKEND_MODE=memory STORE_MODE=memory DEV=true air --build.cmd "go build -o ./tmp/portal ./cmd/portal" --build.bin ./tmp/portal
//   Docs: https://github.com/air-verse/air
