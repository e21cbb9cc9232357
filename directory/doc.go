// Package directory is an in-memory user directory with Argon2id credentials.
//
// It implements both goSession.Authenticator and goSession.UserDirectory and
// backs the sessiond demo users. Production deployments plug their own
// account system into the Builder instead.
package directory
