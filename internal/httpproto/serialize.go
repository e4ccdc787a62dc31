package httpproto

import (
	"bytes"
	"time"
)

// BadRequestWire is the exact byte sequence written for a Malformed decode,
// per §4.C — no headers, no body, connection closed immediately after.
const BadRequestWire = "HTTP/1.1 400 Bad Request\r\n\r\n"

// httpDate renders t in the RFC 1123 HTTP-date form, GMT, e.g.
// "Mon, 02 Jan 2006 15:04:05 GMT".
func httpDate(t time.Time) string {
	return t.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
}

// Serialize renders resp onto the wire in the canonical form of §4.F:
//
//	VERSION SP STATUS_CODE SP STATUS_MESSAGE CRLF
//	(NAME ": " VALUE CRLF)*
//	CRLF
//	BODY
//
// It always sets a Date header, a Connection header reflecting
// resp.KeepAlive ("keep-alive" or "close"), and — per §3's invariant — a
// Content-Length matching the body length whenever the body is non-empty or
// a Content-Length was already present.
func (resp *Response) Serialize(now time.Time) []byte {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Date"] = httpDate(now)
	if resp.KeepAlive {
		resp.Headers["Connection"] = "keep-alive"
	} else {
		resp.Headers["Connection"] = "close"
	}
	if len(resp.Body) > 0 {
		resp.Headers["Content-Length"] = itoa(len(resp.Body))
	} else if _, ok := resp.Headers["Content-Length"]; ok {
		resp.Headers["Content-Length"] = itoa(len(resp.Body))
	}

	var out bytes.Buffer
	out.WriteString(resp.Protocol)
	out.WriteByte(' ')
	out.WriteString(itoa(resp.StatusCode))
	out.WriteByte(' ')
	out.WriteString(resp.StatusMessage)
	out.WriteString("\r\n")
	for name, value := range resp.Headers {
		out.WriteString(name)
		out.WriteString(": ")
		out.WriteString(value)
		out.WriteString("\r\n")
	}
	out.WriteString("\r\n")
	out.Write(resp.Body)
	return out.Bytes()
}
