//go:build !debug
// +build !debug

package harness

const debugBuild = false
