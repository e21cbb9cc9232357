package middleware

import "errors"

var errMissingToken = errors.New("missing access token")
