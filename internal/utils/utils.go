package utils

import (
	"errors"
	"fmt"
	"mime"
	"net/textproto"
	"os"
	"regexp"
	"strings"
)

var (
	// textContentTypePatterns is a slice of regular expressions that match content types
	// considered to be text-based. This includes "text/*", JSON and XML documents
	// and form submissions.
	//nolint:gochecknoglobals // These are immutable, pre-compiled regex patterns and used as constants.
	textContentTypePatterns = []*regexp.Regexp{
		regexp.MustCompile("^text/.+"),
		regexp.MustCompile(`^application/([a-z0-9.-]+\+)?json$`),
		regexp.MustCompile(`^application/([a-z0-9.-]+\+)?xml$`),
		regexp.MustCompile("^application/x-www-form-urlencoded$"),
	}
)

// ErrMalformedHeader indicates that a header line is not in "Name: value" form.
var ErrMalformedHeader = errors.New("malformed header, expected 'Name: value'")

// IsFileExist checks if a file exists at the specified path.
// It returns true if the file exists and is not a directory, false if the file does not exist,
// and an error if there was an issue accessing the file.
func IsFileExist(path string) (bool, error) {
	stat, err := os.Stat(path)
	if err == nil {
		return !stat.IsDir(), nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// IsTextContentType checks if the given content type represents a text-based format.
// It supports "text/*", JSON and XML media types (including "+json" and "+xml" suffixes)
// and URL-encoded forms.
// It also checks that the charset, if present, is either "utf-8" or "us-ascii".
func IsTextContentType(contentType string) bool {
	parsedType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	for _, pattern := range textContentTypePatterns {
		if !pattern.MatchString(parsedType) {
			continue
		}

		charset := strings.ToLower(params["charset"])

		return charset == "" || charset == "utf-8" || charset == "us-ascii"
	}

	return false
}

// ParseHeaders converts "Name: value" lines into a header map keyed by canonical header names.
// A later line for the same header replaces an earlier one.
func ParseHeaders(lines []string) (map[string]string, error) {
	headers := make(map[string]string, len(lines))

	for _, line := range lines {
		name, value, found := strings.Cut(line, ":")

		name = strings.TrimSpace(name)
		if !found || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}

		headers[textproto.CanonicalMIMEHeaderKey(name)] = strings.TrimSpace(value)
	}

	return headers, nil
}
