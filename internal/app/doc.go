// Package app provides the command bodies of the http-fetcher CLI.
// It builds a fetcher from the loaded configuration, executes a single request,
// writes the response body and reports failures through the process logger.
package app
