package persist

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmgilman/go/errors"
)

// Response is the stored form of an HTTP response.
type Response struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// HTTP rebuilds a live response for req. Every call gets its own body reader.
func (r Response) HTTP(req *http.Request) *http.Response {
	return NewHTTPResponse(req, r.Status, r.Header, r.Body)
}

// NewHTTPResponse builds an in-memory *http.Response.
func NewHTTPResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

/*
Capture drains resp and returns two independent copies: one to store and
one to hand back to the caller in place of resp, whose body is consumed.
*/
func Capture(resp *http.Response, now time.Time) (Response, *http.Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, nil, errors.Wrap(err, errors.CodeNetwork, "failed to read response body")
	}

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}

	stored := Response{
		URL:      url,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     append([]byte(nil), body...),
		StoredAt: now,
	}

	live := *resp
	live.Body = io.NopCloser(bytes.NewReader(body))
	live.ContentLength = int64(len(body))
	return stored, &live, nil
}
