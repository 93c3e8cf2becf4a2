package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/aonescu/driftguard/internal/types"
)

type PostgresStore struct {
	db *sql.DB
	mu sync.RWMutex
	// In-memory cache for fast reads
	guards   map[string]types.Guard
	statuses map[string]types.GuardStatus
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		db:       db,
		guards:   make(map[string]types.Guard),
		statuses: make(map[string]types.GuardStatus),
	}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.loadCache(); err != nil {
		log.Printf("Warning: failed to load cache: %v", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Guards table: the declared expected state per target
	CREATE TABLE IF NOT EXISTS guards (
		name TEXT NOT NULL,
		namespace TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_name TEXT NOT NULL,
		target_namespace TEXT,
		expected_hash TEXT NOT NULL,
		auto_remediate BOOLEAN NOT NULL DEFAULT FALSE,
		max_failures_before_alert INT NOT NULL DEFAULT 3,
		source_of_truth_ref TEXT,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW(),
		PRIMARY KEY (namespace, name)
	);
	CREATE INDEX IF NOT EXISTS idx_guards_target ON guards(target_kind, target_name);

	-- Guard statuses: one row per guard, overwritten each reconciliation
	CREATE TABLE IF NOT EXISTS guard_statuses (
		name TEXT NOT NULL,
		namespace TEXT NOT NULL,
		status JSONB NOT NULL,
		last_checked TIMESTAMP NOT NULL,
		PRIMARY KEY (namespace, name),
		FOREIGN KEY (namespace, name) REFERENCES guards(namespace, name) ON DELETE CASCADE
	);

	-- Reconciliations: append-only audit history
	CREATE TABLE IF NOT EXISTS reconciliations (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		namespace TEXT NOT NULL,
		state TEXT NOT NULL,
		current_hash TEXT,
		expected_hash TEXT,
		consecutive_failures INT NOT NULL,
		remediated BOOLEAN,
		alerted BOOLEAN NOT NULL,
		reason TEXT,
		checked_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_guard ON reconciliations(namespace, name);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_checked ON reconciliations(checked_at DESC);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_state ON reconciliations(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) Upsert(guard types.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO guards (
			name, namespace, target_kind, target_name, target_namespace,
			expected_hash, auto_remediate, max_failures_before_alert, source_of_truth_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (namespace, name) DO UPDATE SET
			updated_at = NOW(),
			target_kind = EXCLUDED.target_kind,
			target_name = EXCLUDED.target_name,
			target_namespace = EXCLUDED.target_namespace,
			expected_hash = EXCLUDED.expected_hash,
			auto_remediate = EXCLUDED.auto_remediate,
			max_failures_before_alert = EXCLUDED.max_failures_before_alert,
			source_of_truth_ref = EXCLUDED.source_of_truth_ref
	`, guard.Name, guard.Namespace, guard.TargetKind, guard.TargetName, guard.TargetNamespace,
		guard.ExpectedHash, guard.AutoRemediate, guard.MaxFailuresBeforeAlert, guard.SourceOfTruthRef)
	if err != nil {
		return fmt.Errorf("failed to upsert guard: %w", err)
	}

	s.guards[guard.Key()] = guard
	return nil
}

func (s *PostgresStore) Get(name, namespace string) (types.Guard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guard, exists := s.guards[namespace+"/"+name]
	return guard, exists
}

func (s *PostgresStore) List() []types.Guard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guards := make([]types.Guard, 0, len(s.guards))
	for _, guard := range s.guards {
		guards = append(guards, guard)
	}
	return guards
}

func (s *PostgresStore) Delete(name, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM guards WHERE namespace = $1 AND name = $2`, namespace, name); err != nil {
		return fmt.Errorf("failed to delete guard: %w", err)
	}

	key := namespace + "/" + name
	delete(s.guards, key)
	delete(s.statuses, key)
	return nil
}

func (s *PostgresStore) SetStatus(name, namespace string, status types.GuardStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO guard_statuses (name, namespace, status, last_checked)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, name) DO UPDATE SET
			status = EXCLUDED.status,
			last_checked = EXCLUDED.last_checked
	`, name, namespace, statusJSON, status.LastChecked)
	if err != nil {
		return fmt.Errorf("failed to upsert status: %w", err)
	}

	// Append-only audit row; failures here must not lose the status write.
	_, err = s.db.Exec(`
		INSERT INTO reconciliations (
			name, namespace, state, current_hash, expected_hash,
			consecutive_failures, remediated, alerted, reason, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, name, namespace, status.State, status.CurrentHash, status.ExpectedHash,
		status.ConsecutiveFailures, status.Remediated, status.Alerted, status.Reason, status.LastChecked)
	if err != nil {
		log.Printf("Warning: failed to record reconciliation history: %v", err)
	}

	s.statuses[namespace+"/"+name] = status
	return nil
}

func (s *PostgresStore) GetStatus(name, namespace string) (types.GuardStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.statuses[namespace+"/"+name]
	return status, exists
}

func (s *PostgresStore) ListStatuses() map[string]types.GuardStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[string]types.GuardStatus, len(s.statuses))
	for key, status := range s.statuses {
		statuses[key] = status
	}
	return statuses
}

// GetHistory returns the most recent reconciliation outcomes for one guard.
func (s *PostgresStore) GetHistory(name, namespace string, limit int) ([]types.GuardStatus, error) {
	rows, err := s.db.Query(`
		SELECT state, current_hash, expected_hash, consecutive_failures,
		       remediated, alerted, reason, checked_at
		FROM reconciliations
		WHERE namespace = $1 AND name = $2
		ORDER BY checked_at DESC
		LIMIT $3
	`, namespace, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []types.GuardStatus
	for rows.Next() {
		var st types.GuardStatus
		var currentHash, expectedHash, reason sql.NullString
		var remediated sql.NullBool
		var checkedAt time.Time

		if err := rows.Scan(&st.State, &currentHash, &expectedHash, &st.ConsecutiveFailures,
			&remediated, &st.Alerted, &reason, &checkedAt); err != nil {
			continue
		}

		st.CurrentHash = currentHash.String
		st.ExpectedHash = expectedHash.String
		st.Reason = reason.String
		st.LastChecked = checkedAt
		if remediated.Valid {
			st.Remediated = types.BoolPtr(remediated.Bool)
		}
		history = append(history, st)
	}

	return history, nil
}

func (s *PostgresStore) loadCache() error {
	rows, err := s.db.Query(`
		SELECT name, namespace, target_kind, target_name, COALESCE(target_namespace, ''),
		       expected_hash, auto_remediate, max_failures_before_alert, COALESCE(source_of_truth_ref, '')
		FROM guards
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var guard types.Guard
		if err := rows.Scan(&guard.Name, &guard.Namespace, &guard.TargetKind, &guard.TargetName,
			&guard.TargetNamespace, &guard.ExpectedHash, &guard.AutoRemediate,
			&guard.MaxFailuresBeforeAlert, &guard.SourceOfTruthRef); err != nil {
			continue
		}
		s.guards[guard.Key()] = guard
	}

	statusRows, err := s.db.Query(`SELECT name, namespace, status FROM guard_statuses`)
	if err != nil {
		return err
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var name, namespace string
		var statusJSON []byte
		if err := statusRows.Scan(&name, &namespace, &statusJSON); err != nil {
			continue
		}

		var status types.GuardStatus
		if err := json.Unmarshal(statusJSON, &status); err != nil {
			continue
		}
		s.statuses[namespace+"/"+name] = status
	}

	log.Printf("Loaded %d guards into cache", len(s.guards))
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}
