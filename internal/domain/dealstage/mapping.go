package dealstage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Mapping is a confirmed CRM stage to Zime category assignment.
type Mapping struct {
	CompanyID    int       `json:"companyId"`
	CompanyName  string    `json:"companyName,omitempty"`
	PipelineID   int       `json:"pipelineId"`
	PipelineName string    `json:"pipelineName,omitempty"`
	CRMStageID   int       `json:"crmStageId"`
	CRMStageName string    `json:"crmStageName"`
	CategoryID   int       `json:"categoryId"`
	CategoryName string    `json:"categoryName,omitempty"`
	ConfirmedBy  string    `json:"confirmedBy"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
}

// MappingFilter narrows List. Zero fields match everything.
type MappingFilter struct {
	CompanyID  int
	PipelineID int
}

// MappingStore persists confirmed mappings.
type MappingStore struct {
	db *sql.DB
}

func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

// Replace swaps the whole mapping of one company pipeline in a single
// transaction.
func (s *MappingStore) Replace(ctx context.Context, companyID, pipelineID int, stages []CRMStage, mappings map[int]int, confirmedBy string) error {
	names := make(map[int]string, len(stages))
	for _, st := range stages {
		names[st.ID] = st.Name
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace mappings: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM deal_stage_mapping WHERE company_id = ? AND pipeline_id = ?
	`, companyID, pipelineID); err != nil {
		return fmt.Errorf("clear mappings: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, stageID := range sortedMappings(mappings) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deal_stage_mapping
				(company_id, pipeline_id, crm_stage_id, crm_stage_name, category_id, confirmed_by, confirmed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, companyID, pipelineID, stageID, names[stageID], mappings[stageID], confirmedBy, now)
		if err != nil {
			return fmt.Errorf("insert mapping for stage %d: %w", stageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mappings: %w", err)
	}
	return nil
}

// List returns stored mappings ordered by company, pipeline and stage.
func (s *MappingStore) List(ctx context.Context, f MappingFilter) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.company_id, c.name, m.pipeline_id, p.name, m.crm_stage_id, m.crm_stage_name,
		       m.category_id, z.name, m.confirmed_by, m.confirmed_at
		FROM deal_stage_mapping m
		JOIN company c ON c.id = m.company_id
		JOIN pipeline p ON p.id = m.pipeline_id
		JOIN zime_category z ON z.id = m.category_id
		WHERE (? = 0 OR m.company_id = ?) AND (? = 0 OR m.pipeline_id = ?)
		ORDER BY m.company_id, m.pipeline_id, m.crm_stage_id
	`, f.CompanyID, f.CompanyID, f.PipelineID, f.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	out := []Mapping{}
	for rows.Next() {
		var m Mapping
		var confirmedAt string
		if err := rows.Scan(&m.CompanyID, &m.CompanyName, &m.PipelineID, &m.PipelineName, &m.CRMStageID,
			&m.CRMStageName, &m.CategoryID, &m.CategoryName, &m.ConfirmedBy, &confirmedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		if m.ConfirmedAt, err = time.Parse(time.RFC3339, confirmedAt); err != nil {
			return nil, fmt.Errorf("scan mapping: confirmed_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
