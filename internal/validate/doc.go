// Package validate holds the request and payload limit checks shared
// by the transports: method and content-type gates, body size caps,
// string truncation, and raw payload caps.
package validate
