package dealstage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	"github.com/zime-ai/nucleus/internal/infra/eventbus"
)

// TopicMappingConfirmed is published after a mapping is persisted.
const TopicMappingConfirmed = "dealstage.mapping.confirmed"

// MappingConfirmedEvent is the payload published on TopicMappingConfirmed.
type MappingConfirmedEvent struct {
	CompanyID  int
	PipelineID int
	Stages     int
	Actor      string
}

// View is a point-in-time snapshot of a wizard, safe to serialize.
type View struct {
	ID            string         `json:"id"`
	Step          Step           `json:"step"`
	StepIndex     int            `json:"stepIndex"`
	Progress      []StepProgress `json:"progress"`
	CompanyID     int            `json:"companyId,omitempty"`
	PipelineID    int            `json:"pipelineId,omitempty"`
	Stages        []CRMStage     `json:"stages"`
	Mappings      map[string]int `json:"mappings"`
	MappedCount   int            `json:"mappedCount"`
	LoadingStages bool           `json:"loadingStages"`
	Updating      bool           `json:"updating"`
	CanAdvance    bool           `json:"canAdvance"`
	Status        *Banner        `json:"status,omitempty"`
}

// ReviewView is the review step with the selected names resolved.
type ReviewView struct {
	CompanyName  string `json:"companyName"`
	PipelineName string `json:"pipelineName"`
	Review
	CanConfirm bool `json:"canConfirm"`
}

// Config tunes Service.
type Config struct {
	ConfirmDelay time.Duration
	WizardTTL    time.Duration
}

// Service drives wizards: it owns their store, fetches stages and persists
// confirmed mappings.
type Service struct {
	catalog  *Catalog
	source   StageSource
	mappings *MappingStore
	store    *WizardStore
	bus      eventbus.Publisher
	logger   *zap.Logger
	cfg      Config
}

// NewService wires a wizard service. bus and logger may be nil.
func NewService(catalog *Catalog, source StageSource, mappings *MappingStore, bus eventbus.Publisher, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:  catalog,
		source:   source,
		mappings: mappings,
		store:    NewWizardStore(cfg.WizardTTL),
		bus:      bus,
		logger:   logger,
		cfg:      cfg,
	}
}

// Store exposes the wizard store for housekeeping.
func (s *Service) Store() *WizardStore { return s.store }

// Start opens a new wizard for owner.
func (s *Service) Start(_ context.Context, owner string) View {
	sess := s.store.create(owner)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return snapshot(sess.wiz)
}

func (s *Service) Get(_ context.Context, id, owner string) (View, error) {
	return s.with(id, owner, func(*Wizard) error { return nil })
}

func (s *Service) Delete(_ context.Context, id, owner string) error {
	return s.store.Delete(id, owner)
}

func (s *Service) SelectCompany(ctx context.Context, id, owner string, companyID int) (View, error) {
	if _, err := s.catalog.Company(ctx, companyID); err != nil {
		return View{}, err
	}
	return s.with(id, owner, func(w *Wizard) error { return w.SelectCompany(companyID) })
}

func (s *Service) SelectPipeline(ctx context.Context, id, owner string, pipelineID int) (View, error) {
	if _, err := s.catalog.Pipeline(ctx, pipelineID); err != nil {
		return View{}, err
	}
	return s.with(id, owner, func(w *Wizard) error { return w.SelectPipeline(pipelineID) })
}

func (s *Service) MapStage(ctx context.Context, id, owner string, stageID, categoryID int) (View, error) {
	categories, err := s.catalog.Categories(ctx)
	if err != nil {
		return View{}, err
	}
	return s.with(id, owner, func(w *Wizard) error { return w.MapStage(stageID, categoryID, categories) })
}

// Next advances the wizard. Entering map-stages fetches the CRM stages
// before returning.
func (s *Service) Next(ctx context.Context, id, owner string) (View, error) {
	var fetch bool
	v, err := s.with(id, owner, func(w *Wizard) error {
		var err error
		fetch, err = w.Next()
		return err
	})
	if err != nil || !fetch {
		return v, err
	}
	return s.fetch(ctx, id, owner)
}

// Back steps back. Returning to map-stages from review refetches the stages.
func (s *Service) Back(ctx context.Context, id, owner string) (View, error) {
	var fetch bool
	v, err := s.with(id, owner, func(w *Wizard) error {
		var err error
		fetch, err = w.Back()
		return err
	})
	if err != nil || !fetch {
		return v, err
	}
	return s.fetch(ctx, id, owner)
}

// Refresh refetches the stages while on map-stages.
func (s *Service) Refresh(ctx context.Context, id, owner string) (View, error) {
	_, err := s.with(id, owner, func(w *Wizard) error {
		if w.Step() != StepMapStages {
			return fmt.Errorf("%w: refresh at %s", ErrWrongStep, w.Step())
		}
		if w.Loading {
			return fmt.Errorf("%w: stages are loading", ErrBusy)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.fetch(ctx, id, owner)
}

// fetch loads stages outside the wizard lock. A result that lost its
// generation to a newer fetch or to Back is dropped. The step may have
// changed between the caller's check and this call; no fetch starts then.
func (s *Service) fetch(ctx context.Context, id, owner string) (View, error) {
	sess, err := s.store.get(id, owner)
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	if sess.wiz.Step() != StepMapStages {
		defer sess.mu.Unlock()
		return snapshot(sess.wiz), nil
	}
	gen := sess.wiz.BeginFetch()
	companyID := sess.wiz.CompanyID
	sess.mu.Unlock()

	var stages []CRMStage
	company, err := s.catalog.Company(ctx, companyID)
	if err == nil {
		stages, err = s.source.FetchStages(ctx, company)
	}
	if err != nil {
		s.logger.Error("fetch crm stages failed",
			zap.String("wizard_id", id), zap.Int("company_id", companyID), zap.Error(err))
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.wiz.FinishFetch(gen, stages, err) {
		s.logger.Debug("discarded stale stage fetch", zap.String("wizard_id", id), zap.Uint64("generation", gen))
	}
	s.store.touch(sess.wiz)
	return snapshot(sess.wiz), nil
}

// Review returns the derived review view.
func (s *Service) Review(ctx context.Context, id, owner string) (ReviewView, error) {
	categories, err := s.catalog.Categories(ctx)
	if err != nil {
		return ReviewView{}, err
	}
	sess, err := s.store.get(id, owner)
	if err != nil {
		return ReviewView{}, err
	}

	sess.mu.Lock()
	companyID, pipelineID := sess.wiz.CompanyID, sess.wiz.PipelineID
	rv := ReviewView{
		Review:     BuildReview(sess.wiz.Stages, sess.wiz.Mappings, categories),
		CanConfirm: sess.wiz.CanConfirm(categories),
	}
	sess.mu.Unlock()

	if co, err := s.catalog.Company(ctx, companyID); err == nil {
		rv.CompanyName = co.Name
	}
	if p, err := s.catalog.Pipeline(ctx, pipelineID); err == nil {
		rv.PipelineName = p.Name
	}
	return rv, nil
}

// Confirm persists the reviewed mapping. The outcome is reported on the
// wizard banner; only precondition failures are returned as errors.
func (s *Service) Confirm(ctx context.Context, id, owner string) (View, error) {
	categories, err := s.catalog.Categories(ctx)
	if err != nil {
		return View{}, err
	}
	sess, err := s.store.get(id, owner)
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	w := sess.wiz
	if w.Step() != StepReview {
		sess.mu.Unlock()
		return View{}, fmt.Errorf("%w: confirm at %s", ErrWrongStep, w.Step())
	}
	if w.Updating {
		sess.mu.Unlock()
		return View{}, fmt.Errorf("%w: confirmation in progress", ErrBusy)
	}
	if !w.CanConfirm(categories) {
		sess.mu.Unlock()
		return View{}, fmt.Errorf("%w: every stage needs a valid category", ErrStepIncomplete)
	}
	w.Updating = true
	w.Status = nil
	companyID, pipelineID := w.CompanyID, w.PipelineID
	stages := append([]CRMStage(nil), w.Stages...)
	mapping := make(map[int]int, len(w.Mappings))
	for k, v := range w.Mappings {
		mapping[k] = v
	}
	sess.mu.Unlock()

	err = sleepCtx(ctx, s.cfg.ConfirmDelay)
	if err == nil {
		err = s.mappings.Replace(ctx, companyID, pipelineID, stages, mapping, owner)
	}

	outcome := domainaudit.OutcomeSuccess
	if err != nil {
		outcome = domainaudit.OutcomeError
		s.logger.Error("confirm deal stage mapping failed",
			zap.String("wizard_id", id), zap.Int("company_id", companyID),
			zap.Int("pipeline_id", pipelineID), zap.Error(err))
	}
	s.publish(owner, companyID, pipelineID, len(mapping), outcome)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	w.Updating = false
	if err != nil {
		w.Status = &Banner{Type: BannerError, Message: MsgConfirmFailed}
	} else {
		w.Status = &Banner{Type: BannerSuccess, Message: MsgMapped}
	}
	s.store.touch(w)
	return snapshot(w), nil
}

// Companies lists companies matching the search query.
func (s *Service) Companies(ctx context.Context, query string) ([]Company, error) {
	all, err := s.catalog.Companies(ctx)
	if err != nil {
		return nil, err
	}
	return FilterCompanies(all, query), nil
}

// Pipelines lists pipelines matching the search query.
func (s *Service) Pipelines(ctx context.Context, query string) ([]Pipeline, error) {
	all, err := s.catalog.Pipelines(ctx)
	if err != nil {
		return nil, err
	}
	return FilterPipelines(all, query), nil
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.catalog.Categories(ctx)
}

func (s *Service) Mappings(ctx context.Context, f MappingFilter) ([]Mapping, error) {
	return s.mappings.List(ctx, f)
}

// with runs fn against the wizard under its lock and returns the resulting snapshot.
func (s *Service) with(id, owner string, fn func(*Wizard) error) (View, error) {
	sess, err := s.store.get(id, owner)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := fn(sess.wiz); err != nil {
		return View{}, err
	}
	s.store.touch(sess.wiz)
	return snapshot(sess.wiz), nil
}

func (s *Service) publish(actor string, companyID, pipelineID, stages int, outcome domainaudit.Outcome) {
	if s.bus == nil {
		return
	}
	if outcome == domainaudit.OutcomeSuccess {
		s.bus.Publish(TopicMappingConfirmed, MappingConfirmedEvent{
			CompanyID: companyID, PipelineID: pipelineID, Stages: stages, Actor: actor,
		})
	}
	s.bus.Publish(domainaudit.Topic, domainaudit.Entry{
		Actor:      actor,
		Action:     domainaudit.ActionMappingConfirm,
		EntityType: "deal_stage_mapping",
		EntityID:   fmt.Sprintf("%d/%d", companyID, pipelineID),
		Details:    map[string]any{"stages": stages},
		Outcome:    outcome,
	})
}

// snapshot copies w. Callers hold the wizard lock.
func snapshot(w *Wizard) View {
	v := View{
		ID:            w.ID,
		Step:          w.Step(),
		StepIndex:     w.StepIndex(),
		Progress:      w.Progress(),
		CompanyID:     w.CompanyID,
		PipelineID:    w.PipelineID,
		Stages:        append([]CRMStage{}, w.Stages...),
		Mappings:      make(map[string]int, len(w.Mappings)),
		MappedCount:   w.MappedCount(),
		LoadingStages: w.Loading,
		Updating:      w.Updating,
		CanAdvance:    w.CanAdvance(),
	}
	for k, cat := range w.Mappings {
		v.Mappings[strconv.Itoa(k)] = cat
	}
	if w.Status != nil {
		b := *w.Status
		v.Status = &b
	}
	return v
}
