package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracker-server/internal/db"
)

func NewMux(handle *db.Handle, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, handle)
	mux.Handle("GET /metrics", promhttp.Handler())

	// The root path lands on the login page; everything else under / is
	// served from the static directory (login.html, index.html, assets).
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login.html", http.StatusFound)
	})
	mux.Handle("GET /", http.FileServer(http.Dir(staticDir)))
	return mux
}
