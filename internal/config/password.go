package config

import (
	"encoding/hex"
	"strings"
)

// xorKey is the fixed obfuscation key spec.md §6 names for the {HEX}
// password encoding; it is not a secret, only a deterrent against shoulder
// surfing the config file.
const xorKey = "Claire Kuo"

func xorCycle(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ xorKey[i%len(xorKey)]
	}
	return out
}

func obfuscate(plain string) string {
	return "{" + hex.EncodeToString(xorCycle([]byte(plain))) + "}"
}

// resolvePassword returns the cleartext to use at runtime and the form that
// should be persisted to disk (always the {HEX} wrapper). A plain password
// read from the file is obfuscated on the spot so the next write replaces it.
func resolvePassword(stored string) (cleartext, persisted string, err error) {
	if stored == "" {
		return "", "", nil
	}
	if strings.HasPrefix(stored, "{") && strings.HasSuffix(stored, "}") {
		raw, err := hex.DecodeString(stored[1 : len(stored)-1])
		if err != nil {
			return "", "", err
		}
		clear := string(xorCycle(raw))
		return clear, stored, nil
	}
	return stored, obfuscate(stored), nil
}
