//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// floatReader copies float32 samples to the device as raw bytes, which
// the oto and ebiten backends read as FormatFloat32LE.
var _ = "IntuitionLive requires a little-endian architecture" + 1
