package dealstage

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Step identifies a wizard step.
type Step string

const (
	StepSelectCompany  Step = "select-company"
	StepSelectPipeline Step = "select-pipeline"
	StepMapStages      Step = "map-stages"
	StepReview         Step = "review"
)

// StepInfo describes a step for progress rendering.
type StepInfo struct {
	ID    Step   `json:"id"`
	Label string `json:"label"`
}

// Steps is the fixed linear order of the wizard.
var Steps = []StepInfo{
	{ID: StepSelectCompany, Label: "Select Company"},
	{ID: StepSelectPipeline, Label: "Select Pipeline"},
	{ID: StepMapStages, Label: "Map Deal Stages"},
	{ID: StepReview, Label: "Review & Confirm"},
}

// Banner messages.
const (
	MsgFetchFailed   = "Failed to fetch CRM stages. Please try again."
	MsgMapped        = "Deal stages mapped successfully!"
	MsgConfirmFailed = "Failed to map deal stages. Please try again."
)

var (
	ErrWrongStep       = errors.New("operation not available at this step")
	ErrStepIncomplete  = errors.New("current step is not complete")
	ErrLastStep        = errors.New("already at the last step")
	ErrUnknownStage    = errors.New("unknown crm stage")
	ErrUnknownCategory = errors.New("unknown zime category")
	ErrBusy            = errors.New("wizard is busy")
)

// BannerType is the kind of status banner.
type BannerType string

const (
	BannerSuccess BannerType = "success"
	BannerError   BannerType = "error"
)

// Banner is the flash message shown above the wizard.
type Banner struct {
	Type    BannerType `json:"type"`
	Message string     `json:"message"`
}

// Wizard is the state of one deal stage mapping flow. Its methods are pure
// state transitions; fetching and persistence live in Service.
type Wizard struct {
	ID         string
	Owner      string
	step       int
	CompanyID  int
	PipelineID int
	Stages     []CRMStage
	Mappings   map[int]int // crm stage id -> category id
	Loading    bool
	Updating   bool
	Status     *Banner
	UpdatedAt  time.Time

	generation uint64
}

// NewWizard returns a wizard at the first step.
func NewWizard(id, owner string) *Wizard {
	return &Wizard{ID: id, Owner: owner, Mappings: map[int]int{}, UpdatedAt: time.Now()}
}

func (w *Wizard) Step() Step { return Steps[w.step].ID }

func (w *Wizard) StepIndex() int { return w.step }

// SelectCompany chooses the company. Changing it discards stages and
// mappings collected for the previous company.
func (w *Wizard) SelectCompany(id int) error {
	if w.Step() != StepSelectCompany {
		return fmt.Errorf("%w: select company at %s", ErrWrongStep, w.Step())
	}
	if id != w.CompanyID {
		w.resetStages()
	}
	w.CompanyID = id
	return nil
}

// SelectPipeline chooses the pipeline, with the same reset rule as SelectCompany.
func (w *Wizard) SelectPipeline(id int) error {
	if w.Step() != StepSelectPipeline {
		return fmt.Errorf("%w: select pipeline at %s", ErrWrongStep, w.Step())
	}
	if id != w.PipelineID {
		w.resetStages()
	}
	w.PipelineID = id
	return nil
}

// MapStage assigns categoryID to the fetched stage stageID. A categoryID of
// zero clears the assignment.
func (w *Wizard) MapStage(stageID, categoryID int, categories []Category) error {
	if w.Step() != StepMapStages {
		return fmt.Errorf("%w: map stage at %s", ErrWrongStep, w.Step())
	}
	if w.Loading {
		return fmt.Errorf("%w: stages are loading", ErrBusy)
	}
	if !w.hasStage(stageID) {
		return fmt.Errorf("%w: %d", ErrUnknownStage, stageID)
	}
	if categoryID == 0 {
		delete(w.Mappings, stageID)
		return nil
	}
	if _, ok := findCategory(categories, categoryID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCategory, categoryID)
	}
	w.Mappings[stageID] = categoryID
	return nil
}

// CanAdvance reports whether Next is enabled.
func (w *Wizard) CanAdvance() bool {
	switch w.Step() {
	case StepSelectCompany:
		return w.CompanyID != 0
	case StepSelectPipeline:
		return w.PipelineID != 0
	case StepMapStages:
		// An empty stage list (nothing fetched yet) never unlocks review.
		return !w.Loading && len(w.Stages) > 0 && len(w.Mappings) == len(w.Stages)
	default:
		return false
	}
}

// Next moves one step later. It reports whether the wizard entered the
// map-stages step, in which case the caller must refetch stages.
func (w *Wizard) Next() (bool, error) {
	if w.step == len(Steps)-1 {
		return false, ErrLastStep
	}
	if !w.CanAdvance() {
		return false, fmt.Errorf("%w: %s", ErrStepIncomplete, w.Step())
	}
	w.step++
	return w.Step() == StepMapStages, nil
}

// Back moves one step earlier and reports whether the wizard entered
// map-stages. At the first step it does nothing. Leaving map-stages discards
// any fetch in flight.
func (w *Wizard) Back() (bool, error) {
	if w.step == 0 {
		return false, nil
	}
	if w.Updating {
		return false, fmt.Errorf("%w: confirmation in progress", ErrBusy)
	}
	if w.Step() == StepMapStages {
		w.generation++
		w.Loading = false
	}
	w.step--
	return w.Step() == StepMapStages, nil
}

// BeginFetch marks stages as loading and returns the fetch generation.
func (w *Wizard) BeginFetch() uint64 {
	w.generation++
	w.Loading = true
	return w.generation
}

// FinishFetch applies a fetch result. It returns false and changes nothing
// when gen is stale. A current fetch that finishes off map-stages only clears
// Loading. Mappings for stages missing from the new list are dropped.
func (w *Wizard) FinishFetch(gen uint64, stages []CRMStage, err error) bool {
	if gen != w.generation {
		return false
	}
	w.Loading = false
	if w.Step() != StepMapStages {
		return false
	}
	if err != nil {
		w.Status = &Banner{Type: BannerError, Message: MsgFetchFailed}
		return true
	}
	w.Stages = stages
	for id := range w.Mappings {
		if !w.hasStage(id) {
			delete(w.Mappings, id)
		}
	}
	return true
}

// CanConfirm reports whether the Confirm action is enabled.
func (w *Wizard) CanConfirm(categories []Category) bool {
	if w.Step() != StepReview || w.Updating || w.Loading {
		return false
	}
	return BuildReview(w.Stages, w.Mappings, categories).AllValid
}

// StepProgress is one row of the progress indicator.
type StepProgress struct {
	Index   int    `json:"index"`
	ID      Step   `json:"id"`
	Label   string `json:"label"`
	Reached bool   `json:"reached"`
}

func (w *Wizard) Progress() []StepProgress {
	out := make([]StepProgress, len(Steps))
	for i, s := range Steps {
		out[i] = StepProgress{Index: i, ID: s.ID, Label: s.Label, Reached: i <= w.step}
	}
	return out
}

// MappedCount is how many fetched stages have a category.
func (w *Wizard) MappedCount() int { return len(w.Mappings) }

func (w *Wizard) hasStage(id int) bool {
	for _, s := range w.Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (w *Wizard) resetStages() {
	w.Stages = nil
	w.Mappings = map[int]int{}
	w.Status = nil
}

// ===== REVIEW =====

// ReviewRow is one CRM stage in the review table.
type ReviewRow struct {
	Stage    CRMStage  `json:"stage"`
	Category *Category `json:"category,omitempty"`
	Label    string    `json:"label"`
	Valid    bool      `json:"valid"`
}

// Review is the derived review view.
type Review struct {
	Rows     []ReviewRow `json:"rows"`
	Unmapped int         `json:"unmapped"`
	AllValid bool        `json:"allValid"`
	Summary  string      `json:"summary"`
}

// BuildReview derives the review table from stages and mappings. A row is
// valid iff its mapped category id is in categories.
func BuildReview(stages []CRMStage, mappings map[int]int, categories []Category) Review {
	r := Review{Rows: make([]ReviewRow, 0, len(stages)), AllValid: true}
	for _, s := range stages {
		row := ReviewRow{Stage: s, Label: "Not Mapped"}
		if cat, ok := findCategory(categories, mappings[s.ID]); ok {
			c := cat
			row.Category = &c
			row.Label = c.Label()
			row.Valid = true
		}
		if !row.Valid {
			r.AllValid = false
		}
		if _, mapped := mappings[s.ID]; !mapped {
			r.Unmapped++
		}
		r.Rows = append(r.Rows, row)
	}
	if r.Unmapped == 0 {
		r.Summary = "All stages are properly mapped"
	} else {
		r.Summary = fmt.Sprintf("%d stages need to be mapped", r.Unmapped)
	}
	return r
}

// sortedMappings returns stage ids of m in ascending order.
func sortedMappings(m map[int]int) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
