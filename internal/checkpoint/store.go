// Package checkpoint persists planner Snapshots (internal/solver) to a
// SQLite database, grounded on the teacher's internal/db SQLite wrapper and
// its golang-migrate schema-migration wiring. It uses modernc.org/sqlite
// (pure Go, no cgo) as the driver and golang-migrate/migrate/v4 with an
// embedded migrations filesystem to create the checkpoint schema, and tags
// every checkpoint row with a github.com/google/uuid so that
// "save -> kill -> restore -> continue" can address a specific snapshot.
package checkpoint

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/CxyCH/tapir/internal/diag"
	"github.com/CxyCH/tapir/internal/solver"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed checkpoint table, opened once and shared by
// every Save/Load/List/Delete call.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates it to the latest checkpoint schema. path may be ":memory:" for
// an ephemeral store, matching modernc.org/sqlite's in-memory DSN.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: enabling foreign keys: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("checkpoint: creating sqlite migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("checkpoint: opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("checkpoint: creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("checkpoint: applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save writes snap as a new checkpoint row tagged with a fresh UUID and
// returns that ID. Saving twice without mutating the Solver in between
// re-serializes byte-for-byte identical rows except for the ID and
// created_at columns, matching the round-trip law (spec.md §8 scenario S6).
func (s *Store) Save(label string, snap *solver.Snapshot) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("checkpoint: beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO checkpoints (id, label, seed, root_node_id, clock) VALUES (?, ?, ?, ?, ?)`,
		id, label, snap.Seed, snap.RootNodeID, snap.Clock,
	); err != nil {
		return "", fmt.Errorf("checkpoint: inserting checkpoint row: %w", err)
	}

	for _, st := range snap.States {
		if _, err := tx.Exec(
			`INSERT INTO checkpoint_states (checkpoint_id, state_id, state_bytes, flags) VALUES (?, ?, ?, ?)`,
			id, st.ID, st.State, int64(st.Flags),
		); err != nil {
			return "", fmt.Errorf("checkpoint: inserting state row: %w", err)
		}
	}

	for _, seq := range snap.Sequences {
		if _, err := tx.Exec(
			`INSERT INTO checkpoint_sequences (checkpoint_id, sequence_id, start_depth, is_terminal, invalid_links_start_id) VALUES (?, ?, ?, ?, ?)`,
			id, seq.ID, seq.StartDepth, seq.IsTerminal, seq.InvalidLinksStartID,
		); err != nil {
			return "", fmt.Errorf("checkpoint: inserting sequence row: %w", err)
		}
		for _, e := range seq.Entries {
			if _, err := tx.Exec(
				`INSERT INTO checkpoint_entries (checkpoint_id, sequence_id, entry_id, state_id, discount, reward, action_bytes, observation_bytes, total_discounted_reward, has_been_backed_up, belief_node_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, seq.ID, e.EntryID, e.StateID, e.Discount, e.Reward, e.Action, e.Observation,
				e.TotalDiscountedReward, e.HasBeenBackedUp, e.BeliefNodeID,
			); err != nil {
				return "", fmt.Errorf("checkpoint: inserting entry row: %w", err)
			}
		}
	}

	for _, n := range snap.Nodes {
		if _, err := tx.Exec(
			`INSERT INTO checkpoint_nodes (checkpoint_id, node_id, depth) VALUES (?, ?, ?)`,
			id, n.ID, n.Depth,
		); err != nil {
			return "", fmt.Errorf("checkpoint: inserting node row: %w", err)
		}
		for i, stat := range n.Stats {
			if _, err := tx.Exec(
				`INSERT INTO checkpoint_node_stats (checkpoint_id, node_id, seq, action_bytes, visits, total_q, legal) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, n.ID, i, stat.Action, stat.Visits, stat.TotalQ, stat.Legal,
			); err != nil {
				return "", fmt.Errorf("checkpoint: inserting node stat row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("checkpoint: committing save transaction: %w", err)
	}
	diag.Logf("checkpoint: saved %s (%d states, %d sequences, %d nodes)", id, len(snap.States), len(snap.Sequences), len(snap.Nodes))
	return id, nil
}

// Load reads back the checkpoint tagged id.
func (s *Store) Load(id string) (*solver.Snapshot, error) {
	snap := &solver.Snapshot{}
	row := s.db.QueryRow(`SELECT seed, root_node_id, clock FROM checkpoints WHERE id = ?`, id)
	if err := row.Scan(&snap.Seed, &snap.RootNodeID, &snap.Clock); err != nil {
		return nil, fmt.Errorf("checkpoint: loading checkpoint %s: %w", id, err)
	}

	if err := loadStates(s.db, id, snap); err != nil {
		return nil, err
	}
	if err := loadSequences(s.db, id, snap); err != nil {
		return nil, err
	}
	if err := loadNodes(s.db, id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func loadStates(db *sql.DB, id string, snap *solver.Snapshot) error {
	rows, err := db.Query(`SELECT state_id, state_bytes, flags FROM checkpoint_states WHERE checkpoint_id = ? ORDER BY state_id`, id)
	if err != nil {
		return fmt.Errorf("checkpoint: querying states: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st solver.StateSnapshot
		var flags int64
		if err := rows.Scan(&st.ID, &st.State, &flags); err != nil {
			return fmt.Errorf("checkpoint: scanning state row: %w", err)
		}
		st.Flags = solver.ChangeFlag(flags)
		snap.States = append(snap.States, st)
	}
	return rows.Err()
}

func loadSequences(db *sql.DB, id string, snap *solver.Snapshot) error {
	rows, err := db.Query(`SELECT sequence_id, start_depth, is_terminal, invalid_links_start_id FROM checkpoint_sequences WHERE checkpoint_id = ? ORDER BY sequence_id`, id)
	if err != nil {
		return fmt.Errorf("checkpoint: querying sequences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq solver.SequenceSnapshot
		if err := rows.Scan(&seq.ID, &seq.StartDepth, &seq.IsTerminal, &seq.InvalidLinksStartID); err != nil {
			return fmt.Errorf("checkpoint: scanning sequence row: %w", err)
		}
		snap.Sequences = append(snap.Sequences, seq)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range snap.Sequences {
		seq := &snap.Sequences[i]
		entryRows, err := db.Query(
			`SELECT entry_id, state_id, discount, reward, action_bytes, observation_bytes, total_discounted_reward, has_been_backed_up, belief_node_id
			 FROM checkpoint_entries WHERE checkpoint_id = ? AND sequence_id = ? ORDER BY entry_id`,
			id, seq.ID,
		)
		if err != nil {
			return fmt.Errorf("checkpoint: querying entries for sequence %d: %w", seq.ID, err)
		}
		for entryRows.Next() {
			var e solver.EntrySnapshot
			if err := entryRows.Scan(&e.EntryID, &e.StateID, &e.Discount, &e.Reward, &e.Action, &e.Observation,
				&e.TotalDiscountedReward, &e.HasBeenBackedUp, &e.BeliefNodeID); err != nil {
				entryRows.Close()
				return fmt.Errorf("checkpoint: scanning entry row: %w", err)
			}
			seq.Entries = append(seq.Entries, e)
		}
		err = entryRows.Err()
		entryRows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func loadNodes(db *sql.DB, id string, snap *solver.Snapshot) error {
	rows, err := db.Query(`SELECT node_id, depth FROM checkpoint_nodes WHERE checkpoint_id = ? ORDER BY node_id`, id)
	if err != nil {
		return fmt.Errorf("checkpoint: querying nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n solver.NodeSnapshot
		if err := rows.Scan(&n.ID, &n.Depth); err != nil {
			return fmt.Errorf("checkpoint: scanning node row: %w", err)
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		statRows, err := db.Query(
			`SELECT action_bytes, visits, total_q, legal FROM checkpoint_node_stats WHERE checkpoint_id = ? AND node_id = ? ORDER BY seq`,
			id, n.ID,
		)
		if err != nil {
			return fmt.Errorf("checkpoint: querying node stats for node %d: %w", n.ID, err)
		}
		for statRows.Next() {
			var stat solver.NodeStatSnapshot
			if err := statRows.Scan(&stat.Action, &stat.Visits, &stat.TotalQ, &stat.Legal); err != nil {
				statRows.Close()
				return fmt.Errorf("checkpoint: scanning node stat row: %w", err)
			}
			n.Stats = append(n.Stats, stat)
		}
		err = statRows.Err()
		statRows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns every checkpoint id tagged in this store, most recent first.
func (s *Store) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM checkpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: listing checkpoints: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("checkpoint: scanning checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a checkpoint and every row derived from it.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE id = ?`, id); err != nil {
		return fmt.Errorf("checkpoint: deleting checkpoint %s: %w", id, err)
	}
	return nil
}
