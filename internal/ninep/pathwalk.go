package ninep

import (
	"strings"
	"time"
)

// unixTime is a unix-seconds timestamp as the 9p wire carries it for
// utimensat; it converts to time.Time at the SABFS boundary rather
// than forcing SABFS's Utimes to know about the wire format.
type unixTime int64

func (u unixTime) toTime() time.Time { return time.Unix(int64(u), 0) }

// UnixTime adapts a raw unix-seconds value for Adapter.Utimensat.
func UnixTime(sec int64) unixTime { return unixTime(sec) }

// walkName resolves a single 9p walk element name against dir by
// maintaining an explicit stack of path components, per
// SPEC_FULL.md's original_source/ supplement (hw/9pfs/9p-sabfs-backend.c's
// v9fs_path walk): "." is a no-op, ".." pops the last pushed component
// (never escaping above "/"), and anything else is pushed verbatim.
// This is deliberately not filepath.Clean, which would also collapse
// "//" and resolve lexically without the same one-component-at-a-time
// semantics the original's walk loop uses.
func walkName(dir, name string) string {
	stack := splitPath(dir)
	switch name {
	case ".", "":
		// no-op
	case "..":
		if len(stack) > 0 {
			stack = stack[:len(stack)-1]
		}
	default:
		stack = append(stack, name)
	}
	return joinPath(stack)
}

func splitPath(p string) []string {
	if p == "" || p == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func joinPath(stack []string) string {
	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}
