package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceHashDeterminism(t *testing.T) {
	data := []byte("on_tick(dt: f32) {\n}\n")
	h1 := SourceHash(data)
	h2 := SourceHash(data)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, SourceHash([]byte("on_tick(dt: f32) {\n}\n\n")))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("package main\n")
	assert.NotEqual(t, SourceHash(data), CodegenHash(data),
		"source and codegen hashes of the same bytes must differ")
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + "c" and "a" + "bc" must not collide.
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))

	sum := sha256.Sum256([]byte("grug/source/v1\x00x"))
	assert.Equal(t, hex.EncodeToString(sum[:]), SourceHash([]byte("x")))
}

func TestCodegenHashIncludesVersion(t *testing.T) {
	data := []byte("package main\n")
	assert.Equal(t, hashWithDomain(DomainCodegen+"/"+CodegenVersion, data), CodegenHash(data))
	assert.NotEqual(t, hashWithDomain(DomainCodegen+"/0", data), CodegenHash(data))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abc", ShortHash("abc"))
	assert.Equal(t, "0123456789ab", ShortHash("0123456789abcdef"))
}
