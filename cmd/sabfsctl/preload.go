package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tappress/qemu-wasm/internal/errno"
)

var preloadCmd = &cobra.Command{
	Use:   "preload <image-path>",
	Short: "Preload a file into the whole-file cache and report the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreload,
}

func runPreload(cmd *cobra.Command, args []string) error {
	s := buildStack()
	defer s.close()
	seedDemoFiles(s.img)

	path := args[0]
	result := s.cache.Preload(path)
	if result != 0 {
		return fmt.Errorf("preload %s: errno %d (%s)", path, result, errno.Name(result))
	}
	fmt.Printf("preloaded %s\n", path)
	return nil
}
