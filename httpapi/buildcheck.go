package httpapi

import "net/http"

// BuildIDHeader carries the client's build id on API requests.
const BuildIDHeader = "X-Build-ID"

// BuildCheck rejects API requests from a client built against a different
// deployment. Requests without the header pass.
func BuildCheck(buildID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if buildID == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(BuildIDHeader, buildID)
			if got := r.Header.Get(BuildIDHeader); got != "" && got != buildID {
				writeError(w, r, http.StatusConflict, CodeStaleDeployment, "client build is out of date")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
