// Package store persists cache snapshots so the next session starts
// with the last known data.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// SnapshotStore saves cache snapshots per account
type SnapshotStore struct {
	db *DB
}

func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot replaces the account's stored snapshot. Entities with ids
// outside the int64 range are pending local records and are skipped.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, account string, snap cache.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE account = ?`, account); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queries WHERE account = ?`, account); err != nil {
		return fmt.Errorf("clear queries: %w", err)
	}

	now := time.Now().Unix()
	saved := 0
	for _, e := range snap.Entities {
		ref := e.Ref()
		if ref.ID > math.MaxInt64 {
			continue
		}
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s: %w", ref, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (account, kind, id, body, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(account, kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			account, string(ref.Kind), int64(ref.ID), string(body), now)
		if err != nil {
			return fmt.Errorf("insert %s: %w", ref, err)
		}
		saved++
	}

	for _, q := range snap.Queries {
		refs := make([]model.Ref, 0, len(q.Refs))
		for _, r := range q.Refs {
			if r.ID <= math.MaxInt64 {
				refs = append(refs, r)
			}
		}
		encoded, err := json.Marshal(refs)
		if err != nil {
			return fmt.Errorf("encode refs of %s: %w", q.Key, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO queries (account, scope, qid, refs, owner_kind, owner_id, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account, scope, qid) DO UPDATE SET refs = excluded.refs, owner_kind = excluded.owner_kind,
				owner_id = excluded.owner_id, updated_at = excluded.updated_at`,
			account, string(q.Key.Scope), int64(q.Key.ID), string(encoded),
			string(q.Owner.Kind), int64(q.Owner.ID), q.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert query %s: %w", q.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	logger.Store.Debug("snapshot saved", "account", account, "entities", saved, "queries", len(snap.Queries))
	return nil
}

// LoadSnapshot returns the account's stored snapshot; an empty snapshot
// when none was saved
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, account string) (cache.Snapshot, error) {
	var snap cache.Snapshot

	rows, err := s.db.QueryContext(ctx, `SELECT kind, body FROM entities WHERE account = ?`, account)
	if err != nil {
		return snap, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, body string
		if err := rows.Scan(&kind, &body); err != nil {
			return snap, fmt.Errorf("scan entity: %w", err)
		}
		e, err := decodeEntity(model.Kind(kind), []byte(body))
		if err != nil {
			logger.Store.Warn("skip undecodable entity", "kind", kind, "error", err)
			continue
		}
		snap.Entities = append(snap.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate entities: %w", err)
	}

	qrows, err := s.db.QueryContext(ctx,
		`SELECT scope, qid, refs, owner_kind, owner_id, updated_at FROM queries WHERE account = ?`, account)
	if err != nil {
		return snap, fmt.Errorf("query queries: %w", err)
	}
	defer qrows.Close()
	for qrows.Next() {
		var (
			scope, refs, ownerKind string
			qid, ownerID, updated  int64
		)
		if err := qrows.Scan(&scope, &qid, &refs, &ownerKind, &ownerID, &updated); err != nil {
			return snap, fmt.Errorf("scan query: %w", err)
		}
		qs := cache.QuerySnapshot{
			Key:       cache.Key{Scope: cache.Scope(scope), ID: uint64(qid)},
			UpdatedAt: time.Unix(updated, 0),
		}
		if ownerKind != "" {
			qs.Owner = model.Ref{Kind: model.Kind(ownerKind), ID: uint64(ownerID)}
		}
		if err := json.Unmarshal([]byte(refs), &qs.Refs); err != nil {
			return snap, fmt.Errorf("decode refs of %s: %w", qs.Key, err)
		}
		snap.Queries = append(snap.Queries, qs)
	}
	return snap, qrows.Err()
}

// Clear drops every stored snapshot; run on logout
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queries`); err != nil {
		return fmt.Errorf("clear queries: %w", err)
	}
	return nil
}

func decodeEntity(kind model.Kind, body []byte) (model.Entity, error) {
	var (
		e   model.Entity
		err error
	)
	switch kind {
	case model.KindTask:
		var t model.Task
		err = json.Unmarshal(body, &t)
		e = t
	case model.KindStep:
		var st model.TaskStep
		err = json.Unmarshal(body, &st)
		e = st
	case model.KindSession:
		var se model.Session
		err = json.Unmarshal(body, &se)
		e = se
	case model.KindMessage:
		var m model.Message
		err = json.Unmarshal(body, &m)
		e = m
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
