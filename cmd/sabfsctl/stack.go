package main

import (
	"github.com/tappress/qemu-wasm/internal/elfcache"
	"github.com/tappress/qemu-wasm/internal/image"
	"github.com/tappress/qemu-wasm/internal/procipc"
	"github.com/tappress/qemu-wasm/internal/sabfs"
)

// stack bundles the components one worker would hold, built the same
// way newTestDispatcher wires them in the syscallfp tests.
type stack struct {
	img   *image.Image
	sab   *sabfs.FS
	cache *elfcache.Cache
	proc  *procipc.Worker
	done  chan struct{}
}

func buildStack() *stack {
	img := image.New()
	sab := sabfs.New(img, cfg.SABFSFdBase, cfg.ElfCacheFdBase)
	cache := elfcache.New(img, cfg.ElfCacheFdBase, cfg.MaxFiles, cfg.MaxFds, nil)

	slot := procipc.NewSlot()
	sup := procipc.NewSimSupervisor(int64(cfg.PIDBase))
	done := make(chan struct{})
	go procipc.Serve(slot, sup, done)
	proc := procipc.NewWorker(slot, int64(cfg.PIDBase), cfg.MaxProcs, cfg.IPCTimeout, cfg.ExitGrace)

	return &stack{img: img, sab: sab, cache: cache, proc: proc, done: done}
}

func (s *stack) close() {
	close(s.done)
}

// seedDemoFiles populates the image with a couple of files so stats
// and ls have something to show without a real WASM host feeding it.
func seedDemoFiles(img *image.Image) {
	fd, err := img.Open(cfg.ImagePrefix+"etc/hello", 0102, 0644)
	if err != nil {
		return
	}
	img.Pwrite(fd, []byte("hi\n"), 0)
	img.Close(fd)

	fd, err = img.Open(cfg.ImagePrefix+"bin/busybox", 0102, 0755)
	if err != nil {
		return
	}
	img.Pwrite(fd, []byte{0x7f, 'E', 'L', 'F', 1, 2, 3, 4}, 0)
	img.Close(fd)

	img.Mkdir(cfg.ImagePrefix+"bin", 0755)
}
