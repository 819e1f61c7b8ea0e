package archive

import (
	"strings"

	"github.com/valyala/bytebufferpool"
)

const fieldDelimiter = "|"

// sanitizeField keeps the line format parseable by replacing the delimiter
// and line breaks inside values. Replacement, not escaping: the archive is
// a human-auditable log, not a general serialization format.
func sanitizeField(val string) string {
	val = strings.ReplaceAll(val, fieldDelimiter, "/")
	val = strings.ReplaceAll(val, "\n", " ")
	val = strings.ReplaceAll(val, "\r", " ")
	return val
}

// EncodeLine joins fields into one pipe-delimited record line, without the
// trailing newline.
func EncodeLine(fields ...string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for i, field := range fields {
		if i > 0 {
			buf.WriteString(fieldDelimiter)
		}
		buf.WriteString(sanitizeField(field))
	}
	return buf.String()
}

// DecodeLine splits a record line back into its fields. Used by the
// rebuild tooling and tests; sanitized characters are not recovered.
func DecodeLine(line string) []string {
	return strings.Split(strings.TrimRight(line, "\n"), fieldDelimiter)
}
