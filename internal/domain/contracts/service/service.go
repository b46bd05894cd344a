// Package service wires the contracts normalizer and derivation pass into a
// single entry point the HTTP facade calls. It owns the mapping from
// dataset IDs to normalized contract rows, tracks the "primary" dashboard
// dataset, and maintains a write-through JSON projection of the primary
// dataset on local disk for the auxiliary dashboards.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	analyticsstore "github.com/FACorreiaa/analytics-portal/internal/domain/analytics/store"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts/normalizer"
	"github.com/FACorreiaa/analytics-portal/pkg/storage"
)

// WorkbookFetcher downloads the primary workbook from the remote file
// provider. The download mechanism itself is an external collaborator; the
// engine only depends on this contract.
type WorkbookFetcher interface {
	FetchWorkbook(ctx context.Context) (filename string, data []byte, err error)
}

// Loader parses uploaded bytes into a table; satisfied by the analytics
// loader package.
type Loader func(filename string, raw []byte) (*analytics.Table, []analytics.SchemaEntry, error)

// Service assembles contracts dashboards from uploaded or remotely fetched
// workbooks and keeps the Dataset Store and on-disk projection in sync.
type Service struct {
	store     *analyticsstore.Store
	overrides *normalizer.OverrideStore
	cfg       contracts.KPIConfig
	snapshots *storage.SnapshotStore // nil disables the projection file
	fetcher   WorkbookFetcher        // nil disables remote refresh
	load      Loader
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	byID      map[string]*contracts.Dataset
	primaryID string
	fixed     *normalizer.FixedLookup
}

// New constructs a Service. snapshots and fetcher may be nil to disable the
// projection file and remote refresh respectively.
func New(store *analyticsstore.Store, load Loader, snapshots *storage.SnapshotStore, fetcher WorkbookFetcher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		overrides: normalizer.NewOverrideStore(),
		cfg:       contracts.DefaultKPIConfig(),
		snapshots: snapshots,
		fetcher:   fetcher,
		load:      load,
		logger:    logger,
		now:       normalizer.Today,
	}
}

// Overrides exposes the UGR spelling-correction store so the handler layer
// can register corrections.
func (s *Service) Overrides() *normalizer.OverrideStore { return s.overrides }

// SetFixedVariables indexes a fixed-variables workbook; subsequent
// ingestions overlay each contract row with its matched record. Returns the
// number of indexed records.
func (s *Service) SetFixedVariables(table *analytics.Table, schema []analytics.SchemaEntry) int {
	cols := normalizer.SuggestMapping(schema)
	lookup := normalizer.BuildFixedLookup(table, cols)
	s.mu.Lock()
	s.fixed = lookup
	s.mu.Unlock()
	return lookup.Len()
}

// Ingest normalizes table into contract rows, registers them in the Dataset
// Store under name (so the pivot workbench can also pivot them), marks the
// new dataset primary, and rewrites the projection file.
func (s *Service) Ingest(name string, table *analytics.Table, schema []analytics.SchemaEntry) (*analytics.Dataset, error) {
	cols := normalizer.SuggestMapping(schema)
	ds, err := normalizer.Normalize(table, cols, s.cfg, s.now())
	if err != nil {
		return nil, err
	}

	for i := range ds.Rows {
		ds.Rows[i].UGR = s.overrides.Apply(ds.Rows[i].UGR)
	}

	s.mu.RLock()
	fixed := s.fixed
	s.mu.RUnlock()
	if fixed.HasData() {
		today := s.now()
		for i := range ds.Rows {
			row := &ds.Rows[i]
			fixed.Merge(row)
			// merged planning fields re-anchor the derived values
			if row.EstimatedAnnual > 0 {
				row.ExecutionRate = row.Executed / row.EstimatedAnnual * 100
			} else {
				row.ExecutionRate = 0
			}
			row.State = contracts.ClassifyState(row.EndDate, today)
		}
	}

	normalizedTable, normalizedSchema := ds.AsTable()
	stored := s.store.Put(name, normalizedTable, normalizedSchema)

	s.mu.Lock()
	if s.byID == nil {
		s.byID = make(map[string]*contracts.Dataset)
	}
	s.byID[stored.ID] = ds
	s.primaryID = stored.ID
	s.mu.Unlock()

	if err := s.writeSnapshot(stored.ID, ds); err != nil {
		s.logger.Warn("dashboard projection write failed", slog.Any("error", err))
	}
	return stored, nil
}

// Dataset returns the normalized contract rows registered under id.
func (s *Service) Dataset(id string) (*contracts.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		id = s.primaryID
	}
	ds, ok := s.byID[id]
	return ds, ok
}

// Datasets lists every registered contracts dataset as {id,name}.
func (s *Service) Datasets() []contracts.DatasetRef {
	s.mu.RLock()
	ids := make(map[string]struct{}, len(s.byID))
	for id := range s.byID {
		ids[id] = struct{}{}
	}
	s.mu.RUnlock()

	out := make([]contracts.DatasetRef, 0, len(ids))
	for _, summary := range s.store.List() {
		if _, ok := ids[summary.ID]; ok {
			out = append(out, contracts.DatasetRef{ID: summary.ID, Name: summary.Name})
		}
	}
	return out
}

// QueryInput is the dashboard query payload.
type QueryInput struct {
	DatasetID string              `json:"datasetId"`
	Filters   map[string][]string `json:"filters"`
	Scenario  ScenarioInput       `json:"scenario"`
	ChartMode contracts.ChartMode `json:"chartMode"`
}

// ScenarioInput wraps the adjustment list so the JSON shape matches the
// front-end payload.
type ScenarioInput struct {
	Adjustments []contracts.ScenarioAdjustment `json:"adjustments"`
}

// Query computes the dashboard view for in.DatasetID (the primary dataset
// when empty), applying filters and scenario adjustments.
func (s *Service) Query(in QueryInput) (contracts.DashboardView, error) {
	s.mu.RLock()
	id := in.DatasetID
	if id == "" {
		id = s.primaryID
	}
	ds, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return contracts.DashboardView{}, analytics.NewError(analytics.CodeUnknownDataset, in.DatasetID, nil)
	}

	mode := in.ChartMode
	if mode != contracts.ChartModeMonthly {
		mode = contracts.ChartModeTotal
	}

	rows := filterRows(ds.Rows, in.Filters)
	view := contracts.BuildDashboardView(ds, rows, s.cfg, s.now(), mode)
	view.DatasetID = id
	view.Datasets = s.Datasets()
	view.Scenario = contracts.ApplyScenario(view.KPIs, rows, in.Scenario.Adjustments)
	return view, nil
}

// filterRows keeps rows whose field values are all inside the allow-sets.
// Recognized filter fields: ugr, pi, fornecedor, situacao, estado.
func filterRows(rows []contracts.Row, filters map[string][]string) []contracts.Row {
	if len(filters) == 0 {
		return rows
	}
	allow := make(map[string]map[string]struct{}, len(filters))
	for field, values := range filters {
		if len(values) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		allow[field] = set
	}
	if len(allow) == 0 {
		return rows
	}

	out := make([]contracts.Row, 0, len(rows))
	for _, r := range rows {
		if matchRow(r, allow) {
			out = append(out, r)
		}
	}
	return out
}

func matchRow(r contracts.Row, allow map[string]map[string]struct{}) bool {
	for field, set := range allow {
		var v string
		switch field {
		case "ugr":
			v = r.UGR
		case "pi":
			v = r.PI
		case "fornecedor", "supplier":
			v = r.Supplier
		case "situacao", "status":
			v = r.Status
		case "estado", "state":
			v = string(r.State)
		default:
			continue
		}
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

// RefreshRemote downloads the primary workbook through the configured
// fetcher and replaces the primary dataset with the result.
func (s *Service) RefreshRemote(ctx context.Context) (*analytics.Dataset, error) {
	if s.fetcher == nil {
		return nil, analytics.NewError(analytics.CodeRemoteFetchFailed, "remote refresh is not configured", nil)
	}

	filename, data, err := s.fetcher.FetchWorkbook(ctx)
	if err != nil {
		return nil, analytics.NewError(analytics.CodeRemoteFetchFailed, "fetching remote workbook", err)
	}

	table, schema, err := s.load(filename, data)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	previous := s.primaryID
	s.mu.RUnlock()

	stored, err := s.Ingest(filename, table, schema)
	if err != nil {
		return nil, err
	}

	// The refreshed workbook replaces the previous primary dataset.
	if previous != "" && previous != stored.ID {
		s.store.Delete(previous)
		s.mu.Lock()
		delete(s.byID, previous)
		s.mu.Unlock()
	}

	s.logger.Info("primary dashboard dataset refreshed",
		slog.String("dataset_id", stored.ID),
		slog.String("name", stored.Name),
		slog.Int("rows", len(s.mustRows(stored.ID))),
	)
	return stored, nil
}

func (s *Service) mustRows(id string) []contracts.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ds, ok := s.byID[id]; ok {
		return ds.Rows
	}
	return nil
}

// snapshotPayload is the on-disk projection schema consumed by the
// auxiliary dashboards.
type snapshotPayload struct {
	KPIs               contracts.KPIs           `json:"kpis"`
	UGRAnalysis        []contracts.UGRBreakdown `json:"ugr_analysis"`
	MonthlyConsumption []contracts.MonthlyPoint `json:"monthly_consumption"`
	ExpiringContracts  []contracts.ExpiringItem `json:"expiring_contracts_list"`
	ExpiredContracts   []contracts.ExpiringItem `json:"expired_contracts_list"`
	RawDataForFilters  []contracts.Row          `json:"raw_data_for_filters"`
}

// writeSnapshot rewrites the projection file for the primary dataset.
func (s *Service) writeSnapshot(id string, ds *contracts.Dataset) error {
	if s.snapshots == nil {
		return nil
	}
	today := s.now()
	payload := snapshotPayload{
		KPIs:               contracts.DeriveKPIs(ds.Rows, s.cfg, today),
		UGRAnalysis:        contracts.DeriveUGRBreakdown(ds.Rows, today),
		MonthlyConsumption: contracts.DeriveMonthlySeries(ds.Rows),
		ExpiringContracts:  contracts.DeriveExpiring(ds.Rows, s.cfg, today),
		ExpiredContracts:   contracts.DeriveExpired(ds.Rows, s.cfg, today),
		RawDataForFilters:  ds.Rows,
	}
	return s.snapshots.Write(payload)
}
