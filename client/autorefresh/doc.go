// Package autorefresh keeps a client-side session alive.
//
// An [Agent] moves through Idle → Scheduled → Refreshing → Idle, or to
// LoggedOut when the server rejects the session. Proactive refreshes run at
// a fixed ratio of the access token lifetime; concurrent refreshes are
// coalesced so at most one request is in flight. [Transport] adds a single
// retry after a 401, and [Agent.Do] retries once after a stale deployment.
//
// Server failures are classified by error code ([APIError.Kind]), never by
// message text.
package autorefresh
