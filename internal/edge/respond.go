package edge

import "net/http"

// badRequest and notFound intentionally carry only a short, generic string:
// spec.md §4.7 Failure semantics forbids leaking which check failed.
func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}

func notFound(w http.ResponseWriter) {
	http.Error(w, "not found", http.StatusNotFound)
}

func internalError(w http.ResponseWriter, log func(msg string, args ...any), op string, err error) {
	log("edge handler failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writePlaylist(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
