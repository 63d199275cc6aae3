// Package dealstage maps a customer's CRM deal-pipeline stages onto the fixed
// Zime category sequence through a four-step wizard, and stores the confirmed
// mappings.
package dealstage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CRMType names the CRM a company runs.
type CRMType string

const (
	CRMSalesforce CRMType = "Salesforce"
	CRMHubSpot    CRMType = "HubSpot"
	CRMPipedrive  CRMType = "Pipedrive"
)

var (
	ErrCompanyNotFound  = errors.New("company not found")
	ErrPipelineNotFound = errors.New("pipeline not found")
)

type Company struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	CRMType CRMType `json:"crmType"`
}

type Pipeline struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Category is one entry of the Zime target taxonomy.
type Category struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

// Label renders the category the way the mapping screens show it.
func (c Category) Label() string {
	return fmt.Sprintf("%d. %s", c.Sequence, c.Name)
}

// CRMStage is a stage in the customer's own pipeline.
type CRMStage struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Catalog reads companies, pipelines and Zime categories.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Companies(ctx context.Context) ([]Company, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, crm_type FROM company ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	out := []Company{}
	for rows.Next() {
		var co Company
		var crm string
		if err := rows.Scan(&co.ID, &co.Name, &crm); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		co.CRMType = CRMType(crm)
		out = append(out, co)
	}
	return out, rows.Err()
}

func (c *Catalog) Company(ctx context.Context, id int) (Company, error) {
	var co Company
	var crm string
	err := c.db.QueryRowContext(ctx, `SELECT id, name, crm_type FROM company WHERE id = ?`, id).Scan(&co.ID, &co.Name, &crm)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, ErrCompanyNotFound
	}
	if err != nil {
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	co.CRMType = CRMType(crm)
	return co, nil
}

func (c *Catalog) Pipelines(ctx context.Context) ([]Pipeline, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM pipeline ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	out := []Pipeline{}
	for rows.Next() {
		var p Pipeline
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Catalog) Pipeline(ctx context.Context, id int) (Pipeline, error) {
	var p Pipeline
	err := c.db.QueryRowContext(ctx, `SELECT id, name FROM pipeline WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Pipeline{}, ErrPipelineNotFound
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}
	return p, nil
}

// Categories returns the Zime categories in sequence order.
func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, sequence FROM zime_category ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Sequence); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

// FilterCompanies keeps companies whose name contains query (ignoring case)
// or whose decimal id contains query. An empty query keeps everything.
func FilterCompanies(companies []Company, query string) []Company {
	q := strings.ToLower(query)
	out := []Company{}
	for _, co := range companies {
		if strings.Contains(strings.ToLower(co.Name), q) || strings.Contains(strconv.Itoa(co.ID), query) {
			out = append(out, co)
		}
	}
	return out
}

// FilterPipelines keeps pipelines whose name contains query, ignoring case.
func FilterPipelines(pipelines []Pipeline, query string) []Pipeline {
	q := strings.ToLower(query)
	out := []Pipeline{}
	for _, p := range pipelines {
		if strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out
}

func findCategory(categories []Category, id int) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}
