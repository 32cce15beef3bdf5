//go:build !tinygo

package main

// This file lets the regular Go toolchain (go vet, staticcheck, the
// module's own tests) see package main. The real firmware entrypoint,
// main.go, is TinyGo-only — it references machine.UART1 and other
// hardware that doesn't exist off-target.

func main() {}
