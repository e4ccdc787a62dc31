package httpproto

import (
	"strconv"
	"strings"
	"time"

	"github.com/s00inx/zhttp/internal/buf"
)

// Status is the outcome of a single Decoder.Feed call.
type Status uint8

const (
	// NeedMore means the buffer does not yet hold a complete request and the
	// caller should wait for more bytes before calling Feed again.
	NeedMore Status = iota
	// Complete means Decoder.Request holds a fully decoded request.
	Complete
	// Malformed means the bytes consumed so far can never form a valid
	// request; the connection must be torn down after a 400 response.
	Malformed
)

type decoderState uint8

const (
	stateRequestLine decoderState = iota
	stateHeaders
	stateBody
)

// Decoder is the ExpectRequestLine -> ExpectHeaders -> ExpectBody -> Complete
// state machine of §4.C. It operates in place on the connection's read
// buffer and is restartable via Reset so one Decoder serves every request on
// a keep-alive connection.
type Decoder struct {
	state         decoderState
	req           Request
	contentLength int
	bodyless      bool // set by finishHeaders when this request carries no body
}

// NewDecoder returns a Decoder in its initial ExpectRequestLine state.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.Reset()
	return d
}

// Reset discards any partially decoded request and returns the decoder to
// ExpectRequestLine with a fresh, empty Request.
func (d *Decoder) Reset() {
	d.state = stateRequestLine
	d.contentLength = 0
	d.req = Request{
		PathParams:  map[string]string{},
		QueryParams: map[string]string{},
		Headers:     map[string]string{},
	}
}

// Request returns the request decoded by the most recent Complete-returning
// Feed call. Its contents are only meaningful after Complete.
func (d *Decoder) Request() *Request {
	return &d.req
}

// Feed advances the state machine using the unconsumed bytes in b, consuming
// exactly the bytes belonging to one request. Bytes beyond the request (the
// start of the next pipelined request) are left in b. receivedAt stamps the
// Request's ReceivedAt field once decoding completes.
func (d *Decoder) Feed(b *buf.Buffer, receivedAt time.Time) Status {
	for {
		switch d.state {
		case stateRequestLine:
			status := d.feedRequestLine(b)
			if status != Complete {
				return status
			}
		case stateHeaders:
			status := d.feedHeaders(b)
			if status != Complete {
				return status
			}
			if d.bodyless {
				d.req.ReceivedAt = receivedAt
				return Complete
			}
			// Content-Length > 0: state is now stateBody, keep looping so a
			// body that already arrived in the same read is consumed too.
		case stateBody:
			status := d.feedBody(b)
			if status != Complete {
				return status
			}
			d.req.ReceivedAt = receivedAt
			return Complete
		}
	}
}

func (d *Decoder) feedRequestLine(b *buf.Buffer) Status {
	off := b.FindCRLF()
	if off < 0 {
		return NeedMore
	}
	line := string(b.Peek()[:off])
	b.Retrieve(off + 2)

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return Malformed
	}
	method, ok := ParseMethod(parts[0])
	if !ok {
		return Malformed
	}
	target := parts[1]
	version := parts[2]
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return Malformed
	}

	path, rawQuery := target, ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path, rawQuery = target[:i], target[i+1:]
	}
	decodedPath, ok := decodePathComponent(path)
	if !ok {
		return Malformed
	}

	d.req.Method = method
	d.req.Path = decodedPath
	d.req.Protocol = version
	if err := parseQuery(rawQuery, d.req.QueryParams); err != nil {
		return Malformed
	}

	d.state = stateHeaders
	return Complete
}

func (d *Decoder) feedHeaders(b *buf.Buffer) Status {
	for {
		off := b.FindCRLF()
		if off < 0 {
			return NeedMore
		}
		if off == 0 {
			b.Retrieve(2)
			return d.finishHeaders()
		}
		line := string(b.Peek()[:off])
		b.Retrieve(off + 2)

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return Malformed
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		d.req.Headers[name] = value
	}
}

func (d *Decoder) finishHeaders() Status {
	cl, ok := d.req.Headers["Content-Length"]
	if !ok {
		d.req.ContentLength = 0
		d.req.Body = nil
		d.bodyless = true
		return Complete
	}
	n, err := strconv.ParseUint(strings.TrimSpace(cl), 10, 63)
	if err != nil {
		return Malformed
	}
	d.contentLength = int(n)
	d.req.ContentLength = d.contentLength
	if d.contentLength == 0 {
		d.req.Body = nil
		d.bodyless = true
		return Complete
	}
	d.bodyless = false
	d.state = stateBody
	return Complete // state transition only; feedBody checks for enough bytes
}

func (d *Decoder) feedBody(b *buf.Buffer) Status {
	if b.Len() < d.contentLength {
		return NeedMore
	}
	body := make([]byte, d.contentLength)
	copy(body, b.Peek()[:d.contentLength])
	b.Retrieve(d.contentLength)
	d.req.Body = body
	return Complete
}
