package agent

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strings"
)

//go:embed sw.js
var serviceWorkerSource string

const trackingBasePlaceholder = "__TRACKING_BASE__"

// ServiceWorker renders the worker script with the tracking endpoints rooted at base.
func ServiceWorker(base string) []byte {
	quoted, _ := json.Marshal(strings.TrimRight(base, "/"))
	return []byte(strings.Replace(serviceWorkerSource, `"`+trackingBasePlaceholder+`"`, string(quoted), 1))
}

// Handler serves the rendered worker with a root scope allowance.
func Handler(base string) http.Handler {
	body := ServiceWorker(base)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Service-Worker-Allowed", "/")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}
