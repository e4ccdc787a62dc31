package httpproto

import (
	"testing"
	"time"

	"github.com/s00inx/zhttp/internal/buf"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, chunks []string) (*Request, Status) {
	t.Helper()
	d := NewDecoder()
	b := buf.New()
	var status Status
	for _, c := range chunks {
		b.Append([]byte(c))
		status = d.Feed(b, time.Unix(0, 0))
		if status != NeedMore {
			break
		}
	}
	if status == Complete {
		return d.Request(), status
	}
	return nil, status
}

func TestDecoder_GetBasic(t *testing.T) {
	req, status := decodeAll(t, []string{"GET /hello HTTP/1.1\r\nHost: x\r\n\r\n"})
	require.Equal(t, Complete, status)
	require.Equal(t, MethodGET, req.Method)
	require.Equal(t, "/hello", req.Path)
	require.Equal(t, "HTTP/1.1", req.Protocol)
	require.Equal(t, "x", req.Header("Host"))
	require.Equal(t, 0, req.ContentLength)
}

func TestDecoder_PostWithBody(t *testing.T) {
	req, status := decodeAll(t, []string{"POST /submit HTTP/1.1\r\nContent-Length: 4\r\n\r\ndata"})
	require.Equal(t, Complete, status)
	require.Equal(t, "data", string(req.Body))
	require.Equal(t, 4, req.ContentLength)
}

func TestDecoder_FragmentedAcrossReads(t *testing.T) {
	whole := "POST /submit HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello wor" + "ld"
	// chop at every byte boundary to exercise NeedMore repeatedly
	var chunks []string
	for i := 0; i < len(whole); i++ {
		chunks = append(chunks, whole[i:i+1])
	}
	req, status := decodeAll(t, chunks)
	require.Equal(t, Complete, status)
	require.Equal(t, "hello world", string(req.Body))
}

func TestDecoder_QueryParams(t *testing.T) {
	req, status := decodeAll(t, []string{"GET /search?q=a+b&empty&x=%2B HTTP/1.1\r\n\r\n"})
	require.Equal(t, Complete, status)
	require.Equal(t, "a b", req.Query("q"))
	require.Equal(t, "", req.Query("empty"))
	require.Equal(t, "+", req.Query("x"))
}

func TestDecoder_PathLeavesPlusLiteral(t *testing.T) {
	req, status := decodeAll(t, []string{"GET /a+b HTTP/1.1\r\n\r\n"})
	require.Equal(t, Complete, status)
	require.Equal(t, "/a+b", req.Path)
}

func TestDecoder_UnknownMethodMalformed(t *testing.T) {
	_, status := decodeAll(t, []string{"BADMETHOD / HTTP/1.1\r\n\r\n"})
	require.Equal(t, Malformed, status)
}

func TestDecoder_HeaderWithoutColonMalformed(t *testing.T) {
	_, status := decodeAll(t, []string{"GET / HTTP/1.1\r\nNotAHeader\r\n\r\n"})
	require.Equal(t, Malformed, status)
}

func TestDecoder_ContentLengthOverflowMalformed(t *testing.T) {
	_, status := decodeAll(t, []string{"POST / HTTP/1.1\r\nContent-Length: 99999999999999999999999\r\n\r\n"})
	require.Equal(t, Malformed, status)
}

func TestDecoder_IncompleteRequestLineNeedsMore(t *testing.T) {
	d := NewDecoder()
	b := buf.New()
	b.Append([]byte("GET /hello HTTP/1.1"))
	status := d.Feed(b, time.Now())
	require.Equal(t, NeedMore, status)
}

func TestDecoder_LeavesExtraBytesForNextRequest(t *testing.T) {
	d := NewDecoder()
	b := buf.New()
	b.Append([]byte("GET /one HTTP/1.1\r\n\r\nGET /two HTTP/1.1\r\n\r\n"))
	status := d.Feed(b, time.Now())
	require.Equal(t, Complete, status)
	require.Equal(t, "/one", d.Request().Path)
	require.Equal(t, len("GET /two HTTP/1.1\r\n\r\n"), b.Len())

	d.Reset()
	status = d.Feed(b, time.Now())
	require.Equal(t, Complete, status)
	require.Equal(t, "/two", d.Request().Path)
	require.Equal(t, 0, b.Len())
}

func TestDecoder_DuplicateHeaderLastWins(t *testing.T) {
	req, status := decodeAll(t, []string{"GET / HTTP/1.1\r\nX-Foo: first\r\nX-Foo: second\r\n\r\n"})
	require.Equal(t, Complete, status)
	require.Equal(t, "second", req.Header("X-Foo"))
}

func TestResponse_SerializeHasOneBlankLineAndDate(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.Protocol = "HTTP/1.1"
	resp.SetBody([]byte("Hello, World!"))

	wire := resp.Serialize(time.Now())
	s := string(wire)
	require.Contains(t, s, "HTTP/1.1 200 OK\r\n")
	require.Contains(t, s, "Content-Length: 13")
	require.Contains(t, s, "Date: ")
	require.Equal(t, 1, countOccurrences(s, "\r\n\r\n"))
	require.True(t, hasSuffix(s, "Hello, World!"))
}

func TestResponse_SerializeSetsConnectionHeaderFromKeepAlive(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.Protocol = "HTTP/1.0"
	resp.KeepAlive = false

	wire := string(resp.Serialize(time.Now()))
	require.Contains(t, wire, "Connection: close\r\n")

	resp2 := NewResponse(200, "OK")
	resp2.Protocol = "HTTP/1.1"
	resp2.KeepAlive = true

	wire2 := string(resp2.Serialize(time.Now()))
	require.Contains(t, wire2, "Connection: keep-alive\r\n")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
