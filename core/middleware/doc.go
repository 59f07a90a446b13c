// Package middleware groups the HTTP middleware shared by the served surfaces.
//
//   - auth: API key validation, as a bearer token or X-API-Key header.
//   - rayid: a request id per request, stored in locals and echoed in the
//     X-Ray-ID response header for tracing.
package middleware
