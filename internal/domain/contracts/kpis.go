package contracts

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// statusLooksExpired reports whether a contract status string marks the
// contract as already expired ("VENCIDO", "VENC.") as opposed to merely
// expiring ("VENCENDO").
func statusLooksExpired(status string) bool {
	upper := strings.ToUpper(strings.TrimSpace(status))
	return strings.Contains(upper, "VENC") && !strings.Contains(upper, "VENCENDO")
}

// ClassifyState derives a row's lifecycle state from its vigency-end date
// and today: noDate, future (end year ahead), onTrack (current year, end on
// or after today), expiredCurrent (current year, end before today),
// expiredPrevious (end year behind).
func ClassifyState(endDate *time.Time, today time.Time) State {
	if endDate == nil {
		return StateNoDate
	}
	end := *endDate
	switch {
	case end.Year() > today.Year():
		return StateFuture
	case end.Year() < today.Year():
		return StateExpiredPrevious
	case end.Before(today.Truncate(24 * time.Hour)):
		return StateExpiredCurrent
	default:
		return StateOnTrack
	}
}

// daysUntil counts whole days from today to end; negative once past.
func daysUntil(end, today time.Time) int {
	t := today.Truncate(24 * time.Hour)
	e := end.Truncate(24 * time.Hour)
	return int(e.Sub(t).Hours() / 24)
}

// DeriveKPIs computes the headline dashboard numbers over rows. The
// vigency date drives the expiring/expired counts; a row without one still
// counts as expired when its status says so.
func DeriveKPIs(rows []Row, cfg KPIConfig, today time.Time) KPIs {
	var k KPIs
	for _, r := range rows {
		k.TotalEstimated += r.EstimatedAnnual
		k.TotalExecuted += r.Executed
		k.TotalCommitted += r.Committed
		k.ContractCount++

		if r.EndDate != nil {
			days := daysUntil(*r.EndDate, today)
			if days < 0 {
				k.ExpiredCount++
			} else if days <= cfg.ExpiringWindowDays {
				k.ExpiringSoon++
			}
		} else if statusLooksExpired(r.Status) {
			k.ExpiredCount++
		}
	}
	k.Balance = k.TotalEstimated - k.TotalExecuted
	if k.Balance < 0 {
		k.Balance = 0
	}
	if k.TotalEstimated > 0 {
		k.ExecutionPercent = k.TotalExecuted / k.TotalEstimated * 100
	}
	return k
}

// DeriveUGRBreakdown aggregates estimated/executed/committed per UGR with
// active/expired contract counts, sorted by estimated value descending.
func DeriveUGRBreakdown(rows []Row, today time.Time) []UGRBreakdown {
	order := make([]string, 0)
	byUGR := make(map[string]*UGRBreakdown)

	for _, r := range rows {
		ugr := r.UGR
		if ugr == "" {
			ugr = "Não informado"
		}
		b, ok := byUGR[ugr]
		if !ok {
			b = &UGRBreakdown{UGR: ugr}
			byUGR[ugr] = b
			order = append(order, ugr)
		}
		b.Estimated += r.EstimatedAnnual
		b.Executed += r.Executed
		b.Committed += r.Committed
		if r.Expired(today) {
			b.ExpiredCount++
		} else {
			b.ActiveCount++
		}
	}

	out := make([]UGRBreakdown, 0, len(order))
	for _, ugr := range order {
		b := byUGR[ugr]
		if b.Estimated > 0 {
			b.ExecutionPercent = b.Executed / b.Estimated * 100
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Estimated > out[j].Estimated })
	return out
}

// DeriveMonthlySeries sums each of the 12 month columns across rows.
func DeriveMonthlySeries(rows []Row) []MonthlyPoint {
	sums := monthSums(rows)
	out := make([]MonthlyPoint, 12)
	for m := 0; m < 12; m++ {
		out[m] = MonthlyPoint{Month: MonthLabels[m], Value: sums[m]}
	}
	return out
}

func monthSums(rows []Row) [12]float64 {
	var sums [12]float64
	for _, r := range rows {
		for m := 0; m < 12; m++ {
			sums[m] += r.Months[m]
		}
	}
	return sums
}

// DeriveExpiring returns the top-N contracts whose vigency ends within
// cfg.ExpiringWindowDays of today (inclusive), most urgent first.
func DeriveExpiring(rows []Row, cfg KPIConfig, today time.Time) []ExpiringItem {
	var out []ExpiringItem
	for _, r := range rows {
		if r.EndDate == nil {
			continue
		}
		days := daysUntil(*r.EndDate, today)
		if days < 0 || days > cfg.ExpiringWindowDays {
			continue
		}
		out = append(out, expiringItem(r, days))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DaysLeft < out[j].DaysLeft })
	return capItems(out, cfg.TopN)
}

// DeriveExpired returns the top-N contracts already past their vigency end,
// most recently expired first. Rows without a vigency date whose status
// reads as expired are appended after the dated ones.
func DeriveExpired(rows []Row, cfg KPIConfig, today time.Time) []ExpiringItem {
	var dated, undated []ExpiringItem
	for _, r := range rows {
		if r.EndDate == nil {
			if statusLooksExpired(r.Status) {
				item := ExpiringItem{
					UGR: r.UGR, PI: r.PI, Description: r.Description,
					Supplier: r.Supplier, ContractNumber: r.ContractNumber,
					Severity: SeverityCritical, Icon: "🔴",
					Motivo: "Contrato com situação vencida",
				}
				undated = append(undated, item)
			}
			continue
		}
		days := daysUntil(*r.EndDate, today)
		if days >= 0 {
			continue
		}
		dated = append(dated, expiringItem(r, days))
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].DaysLeft > dated[j].DaysLeft })
	return capItems(append(dated, undated...), cfg.TopN)
}

func expiringItem(r Row, daysLeft int) ExpiringItem {
	item := ExpiringItem{
		UGR: r.UGR, PI: r.PI, Description: r.Description,
		Supplier: r.Supplier, ContractNumber: r.ContractNumber,
		EndDate: *r.EndDate, DaysLeft: daysLeft,
	}
	switch {
	case daysLeft < 0:
		item.Severity = SeverityCritical
		item.Icon = "🔴"
		item.Motivo = fmt.Sprintf("Vencido há %d dias", -daysLeft)
	case daysLeft <= 15:
		item.Severity = SeverityCritical
		item.Icon = "🔴"
		item.Motivo = fmt.Sprintf("Vence em %d dias", daysLeft)
	case daysLeft <= 30:
		item.Severity = SeverityWarning
		item.Icon = "🟡"
		item.Motivo = fmt.Sprintf("Vence em %d dias", daysLeft)
	default:
		item.Severity = SeverityInfo
		item.Icon = "🔵"
		item.Motivo = fmt.Sprintf("Vence em %d dias", daysLeft)
	}
	return item
}

func capItems(items []ExpiringItem, n int) []ExpiringItem {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// DeriveHeatmap returns one row per contract description with its 12-month
// consumption, highlighting the vigency-end month when it falls within the
// current year.
func DeriveHeatmap(rows []Row, today time.Time) []HeatmapRow {
	out := make([]HeatmapRow, 0, len(rows))
	for _, r := range rows {
		h := HeatmapRow{Description: r.Description, UGR: r.UGR, Months: r.Months}
		if r.EndDate != nil && r.EndDate.Year() == today.Year() {
			h.HighlightMonth = int(r.EndDate.Month())
		}
		out = append(out, h)
	}
	return out
}

// distributionTop is how many contract descriptions get their own slice
// before the remainder collapses into "Outros".
const distributionTop = 6

// DeriveDistribution sums executed value per contract description, keeping
// the top slices and collapsing the tail into "Outros".
func DeriveDistribution(rows []Row) []DistributionSlice {
	order := make([]string, 0)
	totals := make(map[string]float64)
	for _, r := range rows {
		label := r.Description
		if label == "" {
			label = "Não informado"
		}
		if _, ok := totals[label]; !ok {
			order = append(order, label)
		}
		totals[label] += r.Executed
	}
	sort.Slice(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })

	out := make([]DistributionSlice, 0, distributionTop+1)
	rest := 0.0
	for i, label := range order {
		if i < distributionTop {
			out = append(out, DistributionSlice{Label: label, Value: totals[label]})
		} else {
			rest += totals[label]
		}
	}
	if rest > 0 {
		out = append(out, DistributionSlice{Label: "Outros", Value: rest})
	}
	return out
}

// DerivePlannedExecuted shapes the planned/committed/executed chart: a
// single aggregate bar group in total mode, one group per month otherwise
// (monthly executed comes from the month columns; estimated and committed
// are spread evenly across the year).
func DerivePlannedExecuted(rows []Row, k KPIs, mode ChartMode) []PlannedExecutedBar {
	if mode != ChartModeMonthly {
		return []PlannedExecutedBar{{
			Label:     "Totais",
			Estimated: k.TotalEstimated,
			Committed: k.TotalCommitted,
			Executed:  k.TotalExecuted,
		}}
	}

	sums := monthSums(rows)
	out := make([]PlannedExecutedBar, 12)
	for m := 0; m < 12; m++ {
		out[m] = PlannedExecutedBar{
			Label:     MonthLabels[m],
			Estimated: k.TotalEstimated / 12,
			Committed: k.TotalCommitted / 12,
			Executed:  sums[m],
		}
	}
	return out
}

// DeriveFilterOptions collects the distinct UGR/PI/supplier/status values.
func DeriveFilterOptions(rows []Row) FilterOptions {
	return FilterOptions{
		UGRs:      distinct(rows, func(r Row) string { return r.UGR }),
		PIs:       distinct(rows, func(r Row) string { return r.PI }),
		Suppliers: distinct(rows, func(r Row) string { return r.Supplier }),
		Statuses:  distinct(rows, func(r Row) string { return r.Status }),
	}
}

func distinct(rows []Row, get func(Row) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range rows {
		v := get(r)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DeriveAlerts turns the KPI counts into short dashboard notices.
func DeriveAlerts(k KPIs) []Alert {
	var out []Alert
	if k.ExpiredCount > 0 {
		out = append(out, Alert{Severity: SeverityCritical, Message: fmt.Sprintf("%d contrato(s) vencido(s)", k.ExpiredCount)})
	}
	if k.ExpiringSoon > 0 {
		out = append(out, Alert{Severity: SeverityWarning, Message: fmt.Sprintf("%d contrato(s) vencendo em até 60 dias", k.ExpiringSoon)})
	}
	if k.TotalEstimated > 0 && k.ExecutionPercent > 100 {
		out = append(out, Alert{Severity: SeverityWarning, Message: "Execução acima do valor estimado anual"})
	}
	return out
}

// ApplyScenario applies the adjustments to a copy of the base KPIs,
// reporting the aggregate deltas per field. Adjustments naming a UGR not
// present in rows are ignored. Base aggregation happens first; deltas are
// layered on top so the base KPIs stay untouched.
func ApplyScenario(base KPIs, rows []Row, adjustments []ScenarioAdjustment) *Scenario {
	if len(adjustments) == 0 {
		return nil
	}

	known := make(map[string]struct{})
	for _, r := range rows {
		known[r.UGR] = struct{}{}
	}

	s := &Scenario{Adjustments: adjustments}
	for _, adj := range adjustments {
		if _, ok := known[adj.UGR]; !ok {
			continue
		}
		switch strings.ToLower(adj.Field) {
		case "estimated":
			s.DeltaPlanned += adj.Delta
		case "executed":
			s.DeltaExecuted += adj.Delta
		case "committed":
			s.DeltaCommitted += adj.Delta
		}
	}

	adjusted := base
	adjusted.TotalEstimated += s.DeltaPlanned
	adjusted.TotalExecuted += s.DeltaExecuted
	adjusted.TotalCommitted += s.DeltaCommitted
	adjusted.Balance = adjusted.TotalEstimated - adjusted.TotalExecuted
	if adjusted.Balance < 0 {
		adjusted.Balance = 0
	}
	if adjusted.TotalEstimated > 0 {
		adjusted.ExecutionPercent = adjusted.TotalExecuted / adjusted.TotalEstimated * 100
	} else {
		adjusted.ExecutionPercent = 0
	}
	s.KPIs = adjusted
	return s
}

// BuildDashboardView assembles the full dashboard payload over rows.
func BuildDashboardView(ds *Dataset, rows []Row, cfg KPIConfig, today time.Time, mode ChartMode) DashboardView {
	kpis := DeriveKPIs(rows, cfg, today)
	breakdown := DeriveUGRBreakdown(rows, today)
	return DashboardView{
		GeneratedAt:   today,
		KPIs:          kpis,
		Alerts:        DeriveAlerts(kpis),
		UnitBreakdown: breakdown,
		Table:         rows,
		Charts: Charts{
			MonthlySeries:   DeriveMonthlySeries(rows),
			Distribution:    DeriveDistribution(rows),
			PerUnit:         breakdown,
			PlannedExecuted: DerivePlannedExecuted(rows, kpis, mode),
			Heatmap:         DeriveHeatmap(rows, today),
		},
		FilterOptions: DeriveFilterOptions(ds.Rows),
		Warnings:      ds.Warnings,
	}
}
