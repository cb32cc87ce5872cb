package httpmsg

import (
	"fmt"
	"net/http"
	"time"

	"github.com/arnav-deka/proxycache/pkg/constants"
)

// statusText is the minimal set of status lines this proxy ever emits
// itself (§6 — error responses), adapted from the original C server's
// sendErrorMessage switch.
var statusText = map[int]string{
	400: "Bad Request",
	404: "Not Found",
	500: "Internal Server Error",
	501: "Not Implemented",
}

// ErrorResponse renders one of the proxy's own status lines with a
// minimal HTML body, Connection: close, a Date header in IMF-fixdate
// form, and the Server header. 404 is built and tested here but never
// called from worker dispatch — see Open Questions in SPEC_FULL.md.
func ErrorResponse(code int) []byte {
	text, ok := statusText[code]
	if !ok {
		text = "Internal Server Error"
		code = 500
	}

	body := fmt.Sprintf(
		"<HTML><HEAD><TITLE>%d %s</TITLE></HEAD>\n<BODY><H1>%d %s</H1>\n</BODY></HTML>",
		code, text, code, text,
	)

	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Type: text/html\r\nContent-Length: %d\r\nDate: %s\r\nServer: %s\r\n\r\n%s",
		code, text, len(body), time.Now().UTC().Format(http.TimeFormat), constants.ServerName, body,
	))
}
