package provisioning

import (
	"strings"
)

// Payload builders for the state characteristic. These are assembled by
// hand rather than with encoding/json so the truncation budget can be
// enforced byte-for-byte while appending entries.

func buildStatePayload(state State) []byte {
	return []byte(`{"state":"` + string(state) + `"}`)
}

func buildConnectedPayload(ssid, ip string) []byte {
	return []byte(`{"state":"CONNECTED","ssid":"` + jsonEscape(ssid) + `","ip":"` + jsonEscape(ip) + `"}`)
}

// buildScanPayload serializes ranked SSIDs, closing the list as soon as the
// next entry would push the document past budget bytes. A truncated list is
// a valid result; clients get the strongest networks either way.
func buildScanPayload(ssids []string, budget int) []byte {
	var b strings.Builder
	b.WriteString(`{"op":"wifi_scan","ssids":[`)

	first := true
	for _, ssid := range ssids {
		entry := `"` + jsonEscape(ssid) + `"`
		if !first {
			entry = "," + entry
		}
		// +2 for the closing "]}"
		if b.Len()+len(entry)+2 > budget {
			break
		}
		b.WriteString(entry)
		first = false
	}

	b.WriteString("]}")
	return []byte(b.String())
}

// jsonEscape covers the characters a SSID could realistically smuggle into
// the payload. Control characters below 0x20 are replaced outright.
func jsonEscape(in string) string {
	var out strings.Builder
	out.Grow(len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch c {
		case '\\':
			out.WriteString(`\\`)
		case '"':
			out.WriteString(`\"`)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case '\t':
			out.WriteString(`\t`)
		default:
			if c < 0x20 {
				out.WriteByte('?')
			} else {
				out.WriteByte(c)
			}
		}
	}
	return out.String()
}
