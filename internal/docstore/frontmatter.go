package docstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Documents carry an optional structured header between two "---" marker
// lines, followed by freeform body text. The header is a restricted
// YAML-like mapping: string keys, scalar values (strings, numbers,
// booleans, null), nested maps via two-space indentation, and lists of
// scalars or maps via "- " items. Serialize is the inverse of Parse only
// for values this package itself writes.

const frontmatterMarker = "---"

type headerLine struct {
	indent int
	text   string
	number int
}

type lineStream struct {
	lines []headerLine
	pos   int
}

func (s *lineStream) peek() (headerLine, bool) {
	if s.pos >= len(s.lines) {
		return headerLine{}, false
	}
	return s.lines[s.pos], true
}

func (s *lineStream) next() (headerLine, bool) {
	line, ok := s.peek()
	if ok {
		s.pos++
	}
	return line, ok
}

// SplitDocument separates a document into its structured header and the
// untouched body. A document without a leading marker has a nil header and
// the full content as body.
func SplitDocument(content string) (map[string]any, string, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != frontmatterMarker {
		return nil, content, nil
	}
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == frontmatterMarker {
			closing = i
			break
		}
	}
	if closing < 0 {
		return nil, "", fmt.Errorf("unterminated document header")
	}
	headerText := strings.Join(lines[1:closing], "\n")
	body := strings.Join(lines[closing+1:], "\n")
	header, err := ParseHeader(headerText)
	if err != nil {
		return nil, "", err
	}
	return header, body, nil
}

// ComposeDocument renders a header tree and body back into document text.
func ComposeDocument(header map[string]any, body string) string {
	var b strings.Builder
	b.WriteString(frontmatterMarker)
	b.WriteString("\n")
	writeMap(&b, header, 0)
	b.WriteString(frontmatterMarker)
	b.WriteString("\n")
	if body != "" {
		b.WriteString(body)
	}
	return b.String()
}

// ParseHeader parses header text into a generic key/value tree.
func ParseHeader(text string) (map[string]any, error) {
	stream := &lineStream{}
	for i, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(raw, " \t")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}
		indent := 0
		for indent < len(trimmed) && trimmed[indent] == ' ' {
			indent++
		}
		stream.lines = append(stream.lines, headerLine{indent: indent, text: trimmed[indent:], number: i + 1})
	}
	result, err := parseMap(stream, 0)
	if err != nil {
		return nil, err
	}
	if line, ok := stream.peek(); ok {
		return nil, fmt.Errorf("line %d: unexpected indentation", line.number)
	}
	return result, nil
}

func parseMap(stream *lineStream, indent int) (map[string]any, error) {
	out := map[string]any{}
	for {
		line, ok := stream.peek()
		if !ok || line.indent < indent {
			return out, nil
		}
		if line.indent > indent {
			return nil, fmt.Errorf("line %d: unexpected indentation", line.number)
		}
		if strings.HasPrefix(line.text, "- ") || line.text == "-" {
			return nil, fmt.Errorf("line %d: list item outside a list", line.number)
		}
		stream.next()
		key, rawValue, found := strings.Cut(line.text, ":")
		if !found {
			return nil, fmt.Errorf("line %d: expected key: value", line.number)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", line.number)
		}
		rawValue = strings.TrimSpace(rawValue)
		if rawValue != "" {
			out[key] = parseScalar(rawValue)
			continue
		}
		child, ok := stream.peek()
		if !ok || child.indent <= indent {
			out[key] = ""
			continue
		}
		if strings.HasPrefix(child.text, "- ") || child.text == "-" {
			list, err := parseList(stream, child.indent)
			if err != nil {
				return nil, err
			}
			out[key] = list
			continue
		}
		nested, err := parseMap(stream, child.indent)
		if err != nil {
			return nil, err
		}
		out[key] = nested
	}
}

func parseList(stream *lineStream, indent int) ([]any, error) {
	var out []any
	for {
		line, ok := stream.peek()
		if !ok || line.indent < indent {
			return out, nil
		}
		if line.indent > indent {
			return nil, fmt.Errorf("line %d: unexpected indentation", line.number)
		}
		if !strings.HasPrefix(line.text, "- ") && line.text != "-" {
			return out, nil
		}
		stream.next()
		item := strings.TrimSpace(strings.TrimPrefix(line.text, "-"))
		if item == "" {
			return nil, fmt.Errorf("line %d: empty list item", line.number)
		}
		if key, rawValue, found := strings.Cut(item, ":"); found && !looksQuoted(item) {
			// A "- key: value" item opens an inline map; subsequent lines
			// indented past the dash belong to the same item.
			entry := map[string]any{}
			entry[strings.TrimSpace(key)] = parseScalar(strings.TrimSpace(rawValue))
			itemIndent := indent + 2
			for {
				follow, ok := stream.peek()
				if !ok || follow.indent != itemIndent || strings.HasPrefix(follow.text, "- ") {
					break
				}
				stream.next()
				fk, fv, found := strings.Cut(follow.text, ":")
				if !found {
					return nil, fmt.Errorf("line %d: expected key: value", follow.number)
				}
				entry[strings.TrimSpace(fk)] = parseScalar(strings.TrimSpace(fv))
			}
			out = append(out, entry)
			continue
		}
		out = append(out, parseScalar(item))
	}
}

func looksQuoted(s string) bool {
	return strings.HasPrefix(s, `"`) || strings.HasPrefix(s, `'`)
}

func parseScalar(raw string) any {
	if raw == "" {
		return ""
	}
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null", "~":
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func writeMap(b *strings.Builder, values map[string]any, indent int) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pad := strings.Repeat(" ", indent)
	for _, key := range keys {
		switch typed := values[key].(type) {
		case map[string]any:
			b.WriteString(pad + key + ":\n")
			writeMap(b, typed, indent+2)
		case []any:
			if len(typed) == 0 {
				continue
			}
			b.WriteString(pad + key + ":\n")
			writeList(b, typed, indent+2)
		default:
			b.WriteString(pad + key + ": " + formatScalar(typed) + "\n")
		}
	}
}

func writeList(b *strings.Builder, items []any, indent int) {
	pad := strings.Repeat(" ", indent)
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			b.WriteString(pad + "- " + formatScalar(item) + "\n")
			continue
		}
		keys := make([]string, 0, len(entry))
		for key := range entry {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for i, key := range keys {
			if i == 0 {
				b.WriteString(pad + "- " + key + ": " + formatScalar(entry[key]) + "\n")
				continue
			}
			b.WriteString(pad + "  " + key + ": " + formatScalar(entry[key]) + "\n")
		}
	}
}

func formatScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		if needsQuoting(typed) {
			return `"` + strings.ReplaceAll(typed, `"`, `\"`) + `"`
		}
		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	switch s {
	case "true", "false", "null", "~":
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return strings.ContainsAny(s, ":#\"'\n") || strings.HasPrefix(s, "- ") ||
		s != strings.TrimSpace(s)
}
