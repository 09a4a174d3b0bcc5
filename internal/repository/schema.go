package repository

// Schema definitions for the evaluation history.

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    total_score INTEGER NOT NULL,
    triggered_rules TEXT NOT NULL,
    faults TEXT,
    timestamp TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_evaluations_user ON evaluations(user_id, seq);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaEvaluations,
	}
}
