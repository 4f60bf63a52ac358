package provisioning

import (
	"strings"

	errw "github.com/pkg/errors"
)

const (
	opWifiScan    = "wifi_scan"
	opWifiConnect = "wifi_connect"
)

// Command is one decoded provisioning command.
type Command struct {
	Op   string
	SSID string
	PSK  string
}

var errNoOp = errw.New("no op/cmd field in payload")

// parseCommand decodes the minimal JSON command protocol. It accepts the
// current {"op":...} form and the legacy {"cmd":"wifi.scan"|"wifi.connect"}
// form.
func parseCommand(raw []byte) (Command, error) {
	payload := string(raw)

	op := jsonString(payload, "op")
	if op == "" {
		switch jsonString(payload, "cmd") {
		case "wifi.scan":
			op = opWifiScan
		case "wifi.connect":
			op = opWifiConnect
		}
	}
	if op == "" {
		return Command{}, errNoOp
	}

	return Command{
		Op:   op,
		SSID: jsonString(payload, "ssid"),
		PSK:  jsonString(payload, "psk"),
	}, nil
}

// jsonString extracts the string value for key with a raw substring scan:
// the value is whatever sits between the first pair of quotes after the
// first colon following "key". It knows nothing about escaped quotes or the
// surrounding JSON structure. That limitation is deliberate: the payloads
// come from our own companion app and stay tiny, and the quirk is pinned by
// tests rather than hidden behind a real parser.
func jsonString(payload, key string) string {
	needle := `"` + key + `"`
	k := strings.Index(payload, needle)
	if k < 0 {
		return ""
	}

	rest := payload[k+len(needle):]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return ""
	}
	rest = rest[colon+1:]

	q1 := strings.IndexByte(rest, '"')
	if q1 < 0 {
		return ""
	}
	rest = rest[q1+1:]

	q2 := strings.IndexByte(rest, '"')
	if q2 <= 0 {
		return ""
	}
	return rest[:q2]
}
