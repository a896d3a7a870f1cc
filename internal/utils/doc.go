// Package utils provides small helpers shared across the application:
// User-Agent providers, content type inspection, header line parsing and file checks.
package utils
