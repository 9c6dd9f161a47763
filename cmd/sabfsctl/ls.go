package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tappress/qemu-wasm/internal/ninep"
)

var lsCmd = &cobra.Command{
	Use:   "ls <dir>",
	Short: "List a directory through the 9p adapter (component G), not the fast path",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	s := buildStack()
	defer s.close()
	seedDemoFiles(s.img)

	adapter := ninep.New(s.sab)

	dir := args[0]
	fd, errno := adapter.Opendir(dir)
	if errno != 0 {
		return fmt.Errorf("opendir %s: %s", dir, errno.Error())
	}
	for {
		entry, ok, errno := adapter.Readdir(fd)
		if errno != 0 {
			return fmt.Errorf("readdir %s: %s", dir, errno.Error())
		}
		if !ok {
			break
		}
		fmt.Println(entry.Name)
	}
	return nil
}
