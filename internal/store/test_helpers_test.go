package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testArtifact builds a cache record with minimal required fields.
func testArtifact(sourcePath, relPath, codegenHash string) Artifact {
	return Artifact{
		SourcePath:    sourcePath,
		RelPath:       relPath,
		SourceHash:    "src-" + codegenHash,
		CodegenHash:   codegenHash,
		ArtifactPath:  "/build/" + relPath + "." + codegenHash + ".so",
		Entity:        "m:a",
		EntityType:    "World",
		EngineVersion: "0.4.0",
		BuiltSeq:      1,
	}
}
