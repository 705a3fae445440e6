package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource  = "grug/source/v1"
	DomainCodegen = "grug/codegen/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash fingerprints the raw bytes of a mod source file or resource.
func SourceHash(data []byte) string {
	return hashWithDomain(DomainSource, data)
}

// CodegenHash identifies a generated artifact. Two builds with the same
// CodegenHash produce interchangeable plugins, which is what lets the build
// cache skip the toolchain.
func CodegenHash(generated []byte) string {
	return hashWithDomain(DomainCodegen+"/"+CodegenVersion, generated)
}

// ShortHash truncates a hex hash for use in file names.
func ShortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
