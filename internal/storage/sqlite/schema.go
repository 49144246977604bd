package sqlite

const schema = `
-- Features table
CREATE TABLE IF NOT EXISTS features (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    description TEXT NOT NULL DEFAULT '',
    complexity INTEGER NOT NULL DEFAULT 2 CHECK(complexity >= 1 AND complexity <= 3),
    severity TEXT NOT NULL DEFAULT 'MEDIUM',
    current_phase TEXT NOT NULL DEFAULT '0'
        CHECK(current_phase IN ('0', '1', '2', '3', '4', '5', '6', '7', '8')),
    status TEXT NOT NULL DEFAULT 'IN_PROGRESS'
        CHECK(status IN ('IN_PROGRESS', 'BLOCKED', 'COMPLETED', 'CANCELLED')),
    epic_id TEXT,
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    completed_at DATETIME,
    cancelled_at DATETIME,
    -- Completed features sit in the Complete phase and carry completed_at
    CHECK (status != 'COMPLETED' OR (current_phase = '8' AND completed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_features_status ON features(status);
CREATE INDEX IF NOT EXISTS idx_features_epic ON features(epic_id);

-- Phase transitions (append-only)
CREATE TABLE IF NOT EXISTS phase_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL,
    from_phase TEXT NOT NULL,
    to_phase TEXT NOT NULL,
    actor TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('FORWARD', 'BACKWARD', 'ESCALATION')),
    note TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_transitions_feature ON phase_transitions(feature_id, id);

-- Blockers
CREATE TABLE IF NOT EXISTS blockers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'MEDIUM',
    status TEXT NOT NULL DEFAULT 'OPEN'
        CHECK(status IN ('OPEN', 'IN_PROGRESS', 'RESOLVED', 'ESCALATED')),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    resolution TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    escalated_at DATETIME,
    CHECK ((status = 'RESOLVED') = (resolved_at IS NOT NULL)),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_blockers_feature_status ON blockers(feature_id, status);

-- Quality gates, one row per (feature, gate, phase visit)
CREATE TABLE IF NOT EXISTS quality_gates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL,
    name TEXT NOT NULL,
    phase TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 1 CHECK(attempt >= 1),
    status TEXT NOT NULL CHECK(status IN ('PENDING', 'APPROVED', 'REJECTED')),
    approver TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    UNIQUE (feature_id, name, phase, attempt),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

-- Advisory locks
CREATE TABLE IF NOT EXISTS locks (
    feature_id TEXT NOT NULL,
    resource TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('FEATURE', 'FILE')),
    holder TEXT NOT NULL,
    acquired_at DATETIME NOT NULL,
    PRIMARY KEY (feature_id, resource),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_locks_resource ON locks(resource);

-- File conflicts between two features, stored in canonical order
CREATE TABLE IF NOT EXISTS file_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_a TEXT NOT NULL,
    feature_b TEXT NOT NULL,
    resources TEXT NOT NULL DEFAULT '[]',
    risk TEXT NOT NULL CHECK(risk IN ('LOW', 'MEDIUM', 'HIGH')),
    detected_phase TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'DETECTED'
        CHECK(status IN ('DETECTED', 'COORDINATED', 'SERIALIZED', 'RESOLVED')),
    strategy TEXT NOT NULL DEFAULT '',
    detected_by TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    notes TEXT NOT NULL DEFAULT '',
    CHECK (feature_a < feature_b),
    UNIQUE (feature_a, feature_b),
    FOREIGN KEY (feature_a) REFERENCES features(id) ON DELETE CASCADE,
    FOREIGN KEY (feature_b) REFERENCES features(id) ON DELETE CASCADE
);

-- Agent invocations (duration tracking)
CREATE TABLE IF NOT EXISTS agent_invocations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    actor TEXT NOT NULL,
    operation TEXT NOT NULL DEFAULT '',
    aids TEXT NOT NULL DEFAULT '[]',
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    duration_ms INTEGER,
    CHECK ((ended_at IS NULL) = (duration_ms IS NULL)),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_invocations_feature ON agent_invocations(feature_id, phase);

-- Learnings
CREATE TABLE IF NOT EXISTS learnings (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5 CHECK(confidence >= 0 AND confidence <= 1),
    validation_count INTEGER NOT NULL DEFAULT 0,
    validators TEXT NOT NULL DEFAULT '[]',
    importance TEXT NOT NULL DEFAULT 'MEDIUM',
    tags TEXT NOT NULL DEFAULT '[]',
    feature_id TEXT,
    phase TEXT NOT NULL DEFAULT '',
    source_actor TEXT NOT NULL DEFAULT '',
    predecessor_id TEXT UNIQUE,
    successor_id TEXT,
    iteration_number INTEGER NOT NULL DEFAULT 1 CHECK(iteration_number >= 1),
    is_superseded INTEGER NOT NULL DEFAULT 0,
    delta_summary TEXT NOT NULL DEFAULT '',
    reference_count INTEGER NOT NULL DEFAULT 0,
    propagated_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    last_validated_at DATETIME,
    last_referenced_at DATETIME,
    superseded_at DATETIME,
    CHECK (is_superseded = 0 OR successor_id IS NOT NULL),
    FOREIGN KEY (predecessor_id) REFERENCES learnings(id),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_learnings_category ON learnings(category, is_superseded);

-- Knowledge conflicts between two learnings, stored in canonical order
CREATE TABLE IF NOT EXISTS learning_conflicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learning_a TEXT NOT NULL,
    learning_b TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('CONTRADICTION', 'SCOPE_OVERLAP', 'VERSION_DRIFT')),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'OPEN'
        CHECK(status IN ('OPEN', 'INVESTIGATING', 'RESOLVED', 'DEFERRED')),
    winner_id TEXT,
    similarity REAL NOT NULL DEFAULT 0,
    detected_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    resolution_notes TEXT NOT NULL DEFAULT '',
    CHECK (learning_a < learning_b),
    CHECK (winner_id IS NULL OR winner_id = learning_a OR winner_id = learning_b),
    UNIQUE (learning_a, learning_b),
    FOREIGN KEY (learning_a) REFERENCES learnings(id) ON DELETE CASCADE,
    FOREIGN KEY (learning_b) REFERENCES learnings(id) ON DELETE CASCADE
);

-- Declared propagation targets. GLOBAL_NOTE targets use the empty path.
CREATE TABLE IF NOT EXISTS propagation_targets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learning_id TEXT NOT NULL,
    target_kind TEXT NOT NULL,
    target_path TEXT NOT NULL DEFAULT '',
    relevance REAL NOT NULL CHECK(relevance >= 0 AND relevance <= 1),
    declared_by TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    UNIQUE (learning_id, target_kind, target_path),
    FOREIGN KEY (learning_id) REFERENCES learnings(id) ON DELETE CASCADE
);

-- Completed propagations
CREATE TABLE IF NOT EXISTS propagation_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learning_id TEXT NOT NULL,
    target_kind TEXT NOT NULL,
    target_path TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL,
    section TEXT NOT NULL DEFAULT '',
    propagated_at DATETIME NOT NULL,
    UNIQUE (learning_id, target_kind, target_path),
    FOREIGN KEY (learning_id) REFERENCES learnings(id) ON DELETE CASCADE
);

-- Feature evaluation snapshots (append-only)
CREATE TABLE IF NOT EXISTS feature_evals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT NOT NULL,
    efficiency REAL NOT NULL,
    quality REAL NOT NULL,
    overall REAL NOT NULL,
    health TEXT NOT NULL,
    actual_minutes REAL NOT NULL DEFAULT 0,
    expected_minutes REAL NOT NULL DEFAULT 0,
    backward_count INTEGER NOT NULL DEFAULT 0,
    gates_approved INTEGER NOT NULL DEFAULT 0,
    gates_total INTEGER NOT NULL DEFAULT 0,
    blocker_count INTEGER NOT NULL DEFAULT 0,
    thrashing_phases TEXT NOT NULL DEFAULT '[]',
    computed_at DATETIME NOT NULL,
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_feature_evals_feature ON feature_evals(feature_id, id);

-- System health snapshots (append-only)
CREATE TABLE IF NOT EXISTS system_evals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    window_days INTEGER NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    blocked INTEGER NOT NULL DEFAULT 0,
    in_progress INTEGER NOT NULL DEFAULT 0,
    avg_cycle_minutes REAL NOT NULL DEFAULT 0,
    avg_rework REAL NOT NULL DEFAULT 0,
    open_knowledge_conflicts INTEGER NOT NULL DEFAULT 0,
    efficiency REAL NOT NULL,
    quality REAL NOT NULL,
    overall REAL NOT NULL,
    health TEXT NOT NULL,
    computed_at DATETIME NOT NULL
);

-- Alerts. feature_id is NULL for system-wide alerts.
CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature_id TEXT,
    type TEXT NOT NULL,
    level TEXT NOT NULL,
    message TEXT NOT NULL,
    score REAL,
    created_at DATETIME NOT NULL,
    acknowledged_by TEXT NOT NULL DEFAULT '',
    acknowledged_at DATETIME,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    resolution_note TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_alerts_feature_type ON alerts(feature_id, type, resolved_at);

-- Audit trail
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

-- Config table (for storing settings like the similarity threshold)
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Metadata table (for internal state like schema version)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
