// Package insightfinder is the client for the InsightFinder platform
// query APIs. Calls are signed per request with the tenant credential
// carried by that request; the client itself holds no account state.
package insightfinder
