// Package id generates prefixed identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PrefixStreamClient marks notification stream client ids.
const PrefixStreamClient = "sse"

// Generate returns prefix, a hyphen and a 21-character NanoID, e.g.
// "sse-V1StGXR8_Z5jdHi6B-myT". It fails only when the system random source
// does.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}
