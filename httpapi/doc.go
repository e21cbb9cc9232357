// Package httpapi is the HTTP surface of a goSession engine: the auth API
// under /api/auth, health and metrics endpoints, and the route guard in
// front of application pages.
//
// Session tokens travel only in http-only cookies. Responses use the
// {"success","data"|"error","meta"} envelope and clients branch on the error
// code.
package httpapi
