package main

import (
	"html/template"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

var signInTmpl = template.Must(template.New("sign-in").Parse(`<!doctype html>
<title>Sign in</title>
<form id="f">
<input name="identifier" placeholder="identifier">
<input name="password" type="password" placeholder="password">
<button>Sign in</button>
</form>
<script>
document.getElementById("f").onsubmit = async (e) => {
  e.preventDefault();
  const f = new FormData(e.target);
  const res = await fetch("/api/auth/login", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({identifier: f.get("identifier"), password: f.get("password")}),
  });
  if (res.ok) location.href = {{.Next}};
};
</script>
`))

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<title>Dashboard</title>
<p>Signed in as {{.UserID}}</p>
<button onclick="fetch('/api/auth/revoke',{method:'POST'}).then(()=>location.reload())">Sign out everywhere</button>
`))

var refreshingTmpl = template.Must(template.New("refreshing").Parse(`<!doctype html>
<title>Refreshing session</title>
<script>
fetch("/api/auth/refresh", {method: "POST"}).then((res) => {
  if (res.ok) { location.reload(); return; }
  location.href = {{.SignIn}} + "?next=" + encodeURIComponent(location.pathname + location.search);
});
</script>
`))

// newPages serves the sign-in page and a dashboard for every other path.
// The route guard decides which paths reach the dashboard authenticated.
func newPages(cfg goSession.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Guard.SignInPath, func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("next")
		if next == "" {
			next = "/"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = signInTmpl.Execute(w, struct{ Next string }{next})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = dashboardTmpl.Execute(w, struct{ UserID string }{claims.Subject})
	})
	return mux
}

// refreshingPage is served by the guard when only the refresh cookie is
// usable. The browser rotates the pair and reloads.
func refreshingPage(signInPath string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = refreshingTmpl.Execute(w, struct{ SignIn string }{signInPath})
	})
}
