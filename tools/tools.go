//go:build tools
// +build tools

// Package tools declares build-time tool dependencies so `go mod tidy`
// keeps them in go.sum without pulling them into the freestanding binary.
package tools

import (
	_ "golang.org/x/lint/golint"
	_ "golang.org/x/tools/cmd/stringer"
)
