package actops

import "strings"

// parseFlags reads a flat "--name value" argument list, as the Rust
// CLI's own argument parsing does (crates/weaver-cli/src/lib.rs), into
// a lookup map. A trailing flag with no value maps to "".
func parseFlags(args []string) map[string]string {
	flags := make(map[string]string, len(args)/2)
	for i := 0; i < len(args); i++ {
		name, ok := strings.CutPrefix(args[i], "--")
		if !ok {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[name] = args[i+1]
			i++
		} else {
			flags[name] = ""
		}
	}
	return flags
}

// splitPosition parses a "line:character" argument (both one-based,
// spec.md §3) into a zero-based Position.
func splitPosition(value string) Position {
	line, character := 0, 0
	parts := strings.SplitN(value, ":", 2)
	if len(parts) > 0 {
		line = atoiOrZero(parts[0]) - 1
	}
	if len(parts) > 1 {
		character = atoiOrZero(parts[1]) - 1
	}
	if line < 0 {
		line = 0
	}
	if character < 0 {
		character = 0
	}
	return Position{Line: line, Character: character}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
