// Package api exposes the REST surface of the travel search service:
// synchronous pipeline runs, asynchronous search jobs and their
// aggregated statistics.
package api
