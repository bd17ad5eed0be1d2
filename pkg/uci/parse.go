package uci

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Parse reads the textual package format out of data and returns the
// resulting tree. name is the package name the caller expects the content to
// describe; it is not read from the text itself, which carries no package
// header.
func Parse(name string, data []byte) (*Package, error) {
	pkg := &Package{Name: name}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cur *Section
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		fields, err := tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("uci: line %d: %w", lineNo, err)
		}
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "config":
			cur = &Section{}
			switch len(fields) {
			case 1:
				return nil, fmt.Errorf("uci: line %d: config needs a type", lineNo)
			case 2:
				cur.Type = fields[1]
				cur.Anonymous = true
			default:
				cur.Type = fields[1]
				cur.Name = fields[2]
			}
			pkg.Sections = append(pkg.Sections, cur)

		case "option":
			if cur == nil {
				return nil, fmt.Errorf("uci: line %d: option outside of any section", lineNo)
			}
			if len(fields) < 3 {
				return nil, fmt.Errorf("uci: line %d: option needs a name and value", lineNo)
			}
			cur.Options = append(cur.Options, &Option{Name: fields[1], Value: fields[2]})

		case "list":
			if cur == nil {
				return nil, fmt.Errorf("uci: line %d: list outside of any section", lineNo)
			}
			if len(fields) < 3 {
				return nil, fmt.Errorf("uci: line %d: list needs a name and value", lineNo)
			}
			appendListValue(cur, fields[1], fields[2])

		default:
			return nil, fmt.Errorf("uci: line %d: unrecognized keyword %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return pkg, nil
}

func appendListValue(s *Section, name, value string) {
	for _, o := range s.Options {
		if o.Name == name && o.IsList {
			o.List = append(o.List, value)
			return
		}
	}
	s.Options = append(s.Options, &Option{Name: name, IsList: true, List: []string{value}})
}

func stripComment(line string) string {
	inSingle, inDouble := false, false
	for i, r := range line {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == '#' && !inSingle && !inDouble:
			return line[:i]
		}
	}
	return line
}

// tokenize splits a line into whitespace-separated fields, honoring single
// and double quoted tokens (which may themselves contain whitespace).
func tokenize(line string) ([]string, error) {
	var fields []string
	var b strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			fields = append(fields, b.String())
			b.Reset()
			inToken = false
		}
	}

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inToken = true
			b.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}
