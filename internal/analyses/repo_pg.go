package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const resultColumns = `fingerprint, version, findings, overall_recommendation, key_risks,
       negotiation_points, salvaged, stage_versions, provider, model, created_at`

// Append inserts the result with the next version for its fingerprint.
// The version subselect runs inside the INSERT so concurrent appends
// cannot reuse a version; on a rare collision the primary key rejects
// the insert.
func (r *PGRepo) Append(ctx context.Context, result AnalysisResult) (AnalysisResult, error) {
	const query = `
INSERT INTO analysis_results (
	fingerprint, version, findings, overall_recommendation, key_risks,
	negotiation_points, salvaged, stage_versions, provider, model, created_at
)
VALUES (
	$1,
	(SELECT COALESCE(MAX(version), 0) + 1 FROM analysis_results WHERE fingerprint = $1),
	$2, $3, $4, $5, $6, $7, $8, $9, $10
)
RETURNING version`

	findings, err := marshalJSONB(result.Findings)
	if err != nil {
		return AnalysisResult{}, err
	}
	keyRisks, err := marshalJSONB(result.KeyRisks)
	if err != nil {
		return AnalysisResult{}, err
	}
	points, err := marshalJSONB(result.NegotiationPoints)
	if err != nil {
		return AnalysisResult{}, err
	}
	stages, err := marshalJSONB(result.StageVersions)
	if err != nil {
		return AnalysisResult{}, err
	}

	err = r.DB.QueryRowContext(ctx, query,
		result.Fingerprint,
		findings,
		result.OverallRecommendation,
		keyRisks,
		points,
		result.Salvaged,
		stages,
		result.Provider,
		result.Model,
		result.CreatedAt,
	).Scan(&result.Version)
	if err != nil {
		return AnalysisResult{}, err
	}
	return result, nil
}

// Latest returns the highest version for a fingerprint.
func (r *PGRepo) Latest(ctx context.Context, fingerprint string) (AnalysisResult, error) {
	query := `
SELECT ` + resultColumns + `
FROM analysis_results
WHERE fingerprint = $1
ORDER BY version DESC
LIMIT 1`

	result, err := scanResult(r.DB.QueryRowContext(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisResult{}, ErrNotFound
		}
		return AnalysisResult{}, err
	}
	return result, nil
}

// List returns all versions for a fingerprint, newest first.
func (r *PGRepo) List(ctx context.Context, fingerprint string) ([]AnalysisResult, error) {
	query := `
SELECT ` + resultColumns + `
FROM analysis_results
WHERE fingerprint = $1
ORDER BY version DESC`

	rows, err := r.DB.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AnalysisResult{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (AnalysisResult, error) {
	var a AnalysisResult
	var findings []byte
	var keyRisks sql.NullString
	var points sql.NullString
	var stages sql.NullString
	err := row.Scan(
		&a.Fingerprint,
		&a.Version,
		&findings,
		&a.OverallRecommendation,
		&keyRisks,
		&points,
		&a.Salvaged,
		&stages,
		&a.Provider,
		&a.Model,
		&a.CreatedAt,
	)
	if err != nil {
		return AnalysisResult{}, err
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &a.Findings); err != nil {
			a.Findings = nil
		}
	}
	if keyRisks.Valid {
		_ = json.Unmarshal([]byte(keyRisks.String), &a.KeyRisks)
	}
	if points.Valid {
		_ = json.Unmarshal([]byte(points.String), &a.NegotiationPoints)
	}
	if stages.Valid {
		_ = json.Unmarshal([]byte(stages.String), &a.StageVersions)
	}
	return a, nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(value)
}

var _ Repo = (*PGRepo)(nil)
