// Package httpapi is the REST boundary of the lending service: request
// decoding and validation, JWT bearer authentication, the authorization
// policy, error-to-status mapping, and request logging.
package httpapi
