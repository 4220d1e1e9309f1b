package catalog

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Project returns doc reduced to its top-level keys named in fields plus
// the always-kept key. Key order and value formatting follow doc. An empty
// fields list returns doc unchanged.
func Project(doc []byte, fields []string, keep string) json.RawMessage {
	if len(fields) == 0 {
		return doc
	}

	want := make(map[string]struct{}, len(fields)+1)
	for _, f := range fields {
		want[f] = struct{}{}
	}
	want[keep] = struct{}{}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	gjson.ParseBytes(doc).ForEach(func(k, v gjson.Result) bool {
		if _, ok := want[k.String()]; !ok {
			return true
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(k.Raw)
		buf.WriteByte(':')
		buf.WriteString(v.Raw)
		return true
	})
	buf.WriteByte('}')
	return buf.Bytes()
}
