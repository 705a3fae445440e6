package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LookupArtifact returns the cache record for sourcePath.
func (s *Store) LookupArtifact(ctx context.Context, sourcePath string) (Artifact, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_path, rel_path, source_hash, codegen_hash, artifact_path, entity, entity_type, engine_version, built_seq
		FROM artifacts
		WHERE source_path = ?
	`, sourcePath)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("lookup artifact: %w", err)
	}
	return a, true, nil
}

// ListArtifacts returns every cache record ordered by relative path.
func (s *Store) ListArtifacts(ctx context.Context) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_path, rel_path, source_hash, codegen_hash, artifact_path, entity, entity_type, engine_version, built_seq
		FROM artifacts
		ORDER BY rel_path COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// ArtifactReferenced reports whether any record still points at path.
func (s *Store) ArtifactReferenced(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE artifact_path = ?`, path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count artifact references: %w", err)
	}
	return n > 0, nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, started_at, duration_ms, compiled, cached, removed, failed, error
		FROM cycles
		ORDER BY seq DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var (
			c          Cycle
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&c.ID, &c.Seq, &startedAt, &durationMS, &c.Compiled, &c.Cached, &c.Removed, &c.Failed, &c.Error); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.StartedAt = time.UnixMilli(startedAt).UTC()
		c.Duration = time.Duration(durationMS) * time.Millisecond
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// LastCycleSeq returns the highest recorded cycle sequence, or 0.
func (s *Store) LastCycleSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM cycles`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last cycle seq: %w", err)
	}
	return seq.Int64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(r rowScanner) (Artifact, error) {
	var a Artifact
	err := r.Scan(&a.SourcePath, &a.RelPath, &a.SourceHash, &a.CodegenHash, &a.ArtifactPath,
		&a.Entity, &a.EntityType, &a.EngineVersion, &a.BuiltSeq)
	return a, err
}
