// Package flagx lets independent components share os.Args: each one filters
// the arguments down to the flags it owns before parsing them.
package flagx

import (
	"flag"
	"io"
	"slices"
	"strings"
)

// FilterArgs keeps only the flags named in owned, with their values. Both
// "-f value" and "-f=value" forms are recognised. A token starting with "-"
// is never taken as a value.
func FilterArgs(args []string, owned []string) []string {
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if slices.Contains(owned, name) {
				out = append(out, arg)
			}
			continue
		}

		if !slices.Contains(owned, arg) {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}

	return out
}

// ConfigPath returns the value of -c or -config in args, or def when neither
// is present. The last occurrence wins.
func ConfigPath(args []string, def string) string {
	path := def

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", def, "path to config file")
	fs.StringVar(&path, "c", def, "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
