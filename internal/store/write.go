package store

import (
	"context"
	"fmt"
	"time"
)

// Artifact is the build cache record for one mod source file.
type Artifact struct {
	SourcePath    string
	RelPath       string
	SourceHash    string
	CodegenHash   string
	ArtifactPath  string
	Entity        string
	EntityType    string
	EngineVersion string
	BuiltSeq      int64
}

// Cycle summarises one reload cycle.
type Cycle struct {
	ID        string
	Seq       int64
	StartedAt time.Time
	Duration  time.Duration
	Compiled  int
	Cached    int
	Removed   int
	Failed    int
	Error     string // first error of the cycle, empty on success
}

// RecordArtifact stores or replaces the cache record for a.SourcePath.
func (s *Store) RecordArtifact(ctx context.Context, a Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(source_path, rel_path, source_hash, codegen_hash, artifact_path, entity, entity_type, engine_version, built_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			rel_path = excluded.rel_path,
			source_hash = excluded.source_hash,
			codegen_hash = excluded.codegen_hash,
			artifact_path = excluded.artifact_path,
			entity = excluded.entity,
			entity_type = excluded.entity_type,
			engine_version = excluded.engine_version,
			built_seq = excluded.built_seq
	`,
		a.SourcePath,
		a.RelPath,
		a.SourceHash,
		a.CodegenHash,
		a.ArtifactPath,
		a.Entity,
		a.EntityType,
		a.EngineVersion,
		a.BuiltSeq,
	)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// ForgetArtifact drops the cache record for sourcePath. Missing records
// are not an error.
func (s *Store) ForgetArtifact(ctx context.Context, sourcePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE source_path = ?`, sourcePath); err != nil {
		return fmt.Errorf("forget artifact: %w", err)
	}
	return nil
}

// WriteCycle appends a cycle record. Writing the same ID twice is a no-op.
func (s *Store) WriteCycle(ctx context.Context, c Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles
		(id, seq, started_at, duration_ms, compiled, cached, removed, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID,
		c.Seq,
		c.StartedAt.UnixMilli(),
		c.Duration.Milliseconds(),
		c.Compiled,
		c.Cached,
		c.Removed,
		c.Failed,
		c.Error,
	)
	if err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	return nil
}

// PruneCycles keeps only the newest keep cycles.
func (s *Store) PruneCycles(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cycles
		WHERE seq NOT IN (SELECT seq FROM cycles ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	return n, nil
}
