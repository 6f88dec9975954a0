package edge

import (
	"net/http"

	"github.com/krisalay/menu-cache/persist"
)

// Substitute payloads served when both the network and the persistent cache
// fail.
const (
	placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">` +
		`<rect width="200" height="200" fill="#f0f0f0"/>` +
		`<text x="100" y="105" font-family="sans-serif" font-size="14" fill="#999" text-anchor="middle">Image unavailable</text>` +
		`</svg>`

	offlineJSON = `{"error":"Network unavailable","offline":true}`

	offlineHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Offline</title></head>
<body><h1>You are offline</h1><p>The menu will be available again once your connection is restored.</p></body>
</html>
`
)

func placeholderImage(req *http.Request) *http.Response {
	return persist.NewHTTPResponse(req, http.StatusOK,
		http.Header{"Content-Type": []string{"image/svg+xml"}},
		[]byte(placeholderSVG))
}

func offlineAPI(req *http.Request) *http.Response {
	return persist.NewHTTPResponse(req, http.StatusServiceUnavailable,
		http.Header{"Content-Type": []string{"application/json"}},
		[]byte(offlineJSON))
}

func offlinePage(req *http.Request) *http.Response {
	return persist.NewHTTPResponse(req, http.StatusOK,
		http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		[]byte(offlineHTML))
}
