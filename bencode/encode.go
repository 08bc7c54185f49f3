package bencode

import (
	"bytes"
	"sort"
	"strconv"
)

// Serialize produces the canonical bencode encoding of v: dict keys
// sorted by raw-byte order, integers in minimal decimal form.
func Serialize(v Value) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)
	return buf.Bytes()
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindInteger:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.integer, 10))
		buf.WriteByte('e')
	case KindBytes:
		buf.WriteString(strconv.Itoa(len(v.bytes)))
		buf.WriteByte(':')
		buf.Write(v.bytes)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			writeValue(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString(strconv.Itoa(len(k)))
			buf.WriteByte(':')
			buf.WriteString(k)
			writeValue(buf, v.dict[k])
		}
		buf.WriteByte('e')
	}
}
