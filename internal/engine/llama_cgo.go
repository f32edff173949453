//go:build llama

package engine

// cgo link directives for the in-process backend: libllama.so is looked up
// next to the binary at runtime and in ./bin at link time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
