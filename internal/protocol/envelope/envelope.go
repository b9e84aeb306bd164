// Package envelope parses and builds the chat payload line a client sends
// after authentication.
//
// Three layouts are accepted:
//   - pipe: "cipher|sha256" or "cipher|sha256|md5"
//   - JSON: {"cipher": "...", "hash": "...", "md5": "..."}
//   - bare: "cipher" with no digests
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"securechat/internal/protocol/integrity"
)

// Format identifies the layout a payload arrived in.
type Format int

const (
	FormatBare Format = iota
	FormatPipe
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatPipe:
		return "pipe"
	case FormatJSON:
		return "json"
	default:
		return "bare"
	}
}

// ErrMalformed is returned for payloads that match no layout.
var ErrMalformed = errors.New("envelope: malformed payload")

// Envelope is one parsed chat payload. Cipher is still base64.
type Envelope struct {
	Format  Format
	Cipher  string
	Digests integrity.Digests
}

type jsonEnvelope struct {
	Cipher string  `json:"cipher"`
	Hash   string  `json:"hash"`
	MD5    *string `json:"md5,omitempty"`
}

// Parse decodes line.
func Parse(line string) (Envelope, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Envelope{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	if strings.HasPrefix(line, "{") {
		var j jsonEnvelope
		if err := json.Unmarshal([]byte(line), &j); err != nil {
			return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if j.Cipher == "" || j.Hash == "" {
			return Envelope{}, fmt.Errorf("%w: json requires cipher and hash", ErrMalformed)
		}
		e := Envelope{
			Format:  FormatJSON,
			Cipher:  j.Cipher,
			Digests: integrity.Digests{SHA256: j.Hash},
		}
		if j.MD5 != nil {
			e.Digests.MD5 = *j.MD5
		}
		return e, nil
	}

	if strings.Contains(line, "|") {
		parts := strings.Split(line, "|")
		if len(parts) < 2 || len(parts) > 3 {
			return Envelope{}, fmt.Errorf("%w: %d pipe fields", ErrMalformed, len(parts))
		}
		for _, p := range parts[:2] {
			if p == "" {
				return Envelope{}, fmt.Errorf("%w: empty pipe field", ErrMalformed)
			}
		}
		e := Envelope{
			Format:  FormatPipe,
			Cipher:  parts[0],
			Digests: integrity.Digests{SHA256: parts[1]},
		}
		if len(parts) == 3 {
			e.Digests.MD5 = parts[2]
		}
		return e, nil
	}

	return Envelope{Format: FormatBare, Cipher: line}, nil
}

// Build renders e in its Format.
func Build(e Envelope) (string, error) {
	switch e.Format {
	case FormatBare:
		return e.Cipher, nil
	case FormatPipe:
		if e.Digests.MD5 == "" {
			return e.Cipher + "|" + e.Digests.SHA256, nil
		}
		return e.Cipher + "|" + e.Digests.SHA256 + "|" + e.Digests.MD5, nil
	case FormatJSON:
		j := jsonEnvelope{Cipher: e.Cipher, Hash: e.Digests.SHA256}
		if e.Digests.MD5 != "" {
			j.MD5 = &e.Digests.MD5
		}
		b, err := json.Marshal(j)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("envelope: unknown format %d", e.Format)
}
