package handler

import (
	"html/template"
	"net/http"
)

// The real dashboard UI is a separate front-end application. These pages are
// minimal server-rendered stand-ins so the edge gate has navigations to
// protect and operators get a usable login form when running the service
// on its own.

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html>
<head><title>Union Benefits — Sign in</title></head>
<body>
<h1>Sign in</h1>
<form method="post" action="/api/auth/login">
<input name="username" placeholder="Username" autocomplete="username">
<input name="password" type="password" placeholder="Password" autocomplete="current-password">
<input type="hidden" name="callbackUrl" value="{{.CallbackURL}}">
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

var dashboardPage = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html>
<head><title>Union Benefits — Dashboard</title></head>
<body>
<h1>Benefits administration</h1>
<p>Members, employers, plans and claims are served by the benefits API.</p>
</body>
</html>
`))

func LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginPage.Execute(w, struct{ CallbackURL string }{
		CallbackURL: r.URL.Query().Get("callbackUrl"),
	})
}

func DashboardPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = dashboardPage.Execute(w, nil)
}

func HomePage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}
