// Package validation provides centralized input validation logic.
// This includes object identifier checks, part size checks against destination
// limits, and metadata checks.
//
// All requests are validated before any endpoint is contacted so that invalid
// input never opens a multipart session.
package validation
