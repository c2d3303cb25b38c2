//go:build !(linux && (amd64 || arm64 || ppc64 || ppc64le || mips64 || mips64le || riscv64 || s390x || loong64))

package workqueue

// blockSignals is a no-op where per-thread signal masks are not supported;
// the Go runtime already delivers signals through os/signal only.
func blockSignals() func() {
	return func() {}
}
