package dispatcher

import (
	"bytes"
	"io"
	"net/http"
)

// responseWriter buffers a handler's answer so it can be written as one
// HTTP/1.1 response with a Content-Length.
type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.body.Write(b)
}

func (w *responseWriter) reset() {
	w.header = make(http.Header)
	w.status = http.StatusOK
	w.wroteHeader = false
	w.body.Reset()
}

func (w *responseWriter) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    w.status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       req,
		Header:        w.header,
		Body:          io.NopCloser(bytes.NewReader(w.body.Bytes())),
		ContentLength: int64(w.body.Len()),
		Close:         true,
	}
}
