package uci

import (
	"fmt"
	"strings"
)

// Serialize renders a package back into the textual format Parse consumes.
// populate (store -> text) composes Render (translate) with Serialize so
// that a subsequent Parse+Commit round-trips to an equivalent tree.
func Serialize(pkg *Package) []byte {
	var b strings.Builder
	for i, s := range pkg.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		if s.Anonymous {
			fmt.Fprintf(&b, "config %s\n", quote(s.Type))
		} else {
			fmt.Fprintf(&b, "config %s %s\n", quote(s.Type), quote(s.Name))
		}
		for _, o := range s.Options {
			if o.IsList {
				for _, v := range o.List {
					fmt.Fprintf(&b, "\tlist %s %s\n", quote(o.Name), quote(v))
				}
			} else {
				fmt.Fprintf(&b, "\toption %s %s\n", quote(o.Name), quote(o.Value))
			}
		}
	}
	return []byte(b.String())
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	needsQuote := strings.ContainsAny(s, " \t'\"#")
	if !needsQuote {
		return s
	}
	// A literal single quote closes the quoted run, appears inside a
	// double-quoted run, and reopens; Parse joins adjacent quoted runs into
	// one token.
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
