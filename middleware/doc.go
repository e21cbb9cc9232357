// Package middleware exposes the HTTP gates in front of protected routes.
//
// # Guards
//
//   - [RouteGuard] gates page routes: valid access cookie passes, anything
//     else redirects to the sign-in page or defers to OnRefreshable.
//   - [RequireAuth] gates API routes and reports failures through a callback
//     instead of redirecting.
//
// Both place the verified claims in the request context ([ClaimsFromContext]).
//
// # What this package must NOT do
//
//   - Touch the refresh store or refresh tokens inline.
//   - Issue or clear cookies.
package middleware
