//go:build linux && (amd64 || arm64 || ppc64 || ppc64le || mips64 || mips64le || riscv64 || s390x || loong64)

package workqueue

import (
	"runtime"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

var maskedSignals = []unix.Signal{
	unix.SIGINT,
	unix.SIGHUP,
	unix.SIGCHLD,
	unix.SIGTERM,
	unix.SIGPIPE,
}

// blockSignals pins the calling goroutine to its OS thread and blocks the
// process-control signals on that thread. The returned func restores the
// previous mask and unpins the goroutine.
func blockSignals() func() {
	runtime.LockOSThread()

	var set, old unix.Sigset_t
	for _, sig := range maskedSignals {
		bit := uint(sig) - 1
		set.Val[bit/64] |= 1 << (bit % 64)
	}

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		klog.ErrorS(err, "Could not set signal mask")
		runtime.UnlockOSThread()
		return func() {}
	}

	return func() {
		if err := unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil); err != nil {
			// stay locked so the runtime discards this thread with the goroutine
			klog.ErrorS(err, "Could not restore signal mask")
			return
		}
		runtime.UnlockOSThread()
	}
}
