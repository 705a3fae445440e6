// Package ir holds the typed intermediate representation of a checked mod
// file, the form handed from the type checker to the code generator.
//
// Every identifier in the IR is resolved (local, global, the implicit `me`,
// helper or host call) and every expression carries its type, so codegen
// never has to consult the API schema or a scope table.
//
// Source and codegen hashes are domain-separated SHA-256 over raw bytes.
// MarshalCanonical renders values as canonical JSON (sorted keys, NFC
// strings, no insignificant whitespace); golden traces use it so they are
// byte-stable across runs and machines.
//
// This package holds types, hashing and canonical encoding only. It
// imports nothing internal so that the compiler, engine and store can all
// depend on it without cycles.
package ir
