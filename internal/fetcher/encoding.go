package fetcher

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// lookupEncoding resolves an IANA charset name such as "UTF-8" or "ISO-8859-1".
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnsupportedEncoding, name, err)
	}

	// Registered but not implemented by x/text.
	if enc == nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedEncoding, name)
	}

	return enc, nil
}

// Decode converts body bytes to a string using the configured character encoding.
// The encoding is validated at construction, so a decoding failure is a broken invariant and panics.
func (f *Fetcher) Decode(body []byte) string {
	decoded, err := f.encoding.NewDecoder().Bytes(body)
	if err != nil {
		panic(fmt.Errorf("%w as %s: %w", ErrDecodeFailed, f.characterEncoding, err))
	}

	return string(decoded)
}
