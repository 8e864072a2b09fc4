package finance

import (
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/seller_analytics/models"
)

type DedupRule string

const (
	DedupRuleAll        DedupRule = "all"
	DedupRuleGeneration DedupRule = "generation"
	DedupRuleLifecycle  DedupRule = "lifecycle"
)

func ParseDedupRule(s string) (DedupRule, error) {
	switch DedupRule(s) {
	case "", DedupRuleAll:
		return DedupRuleAll, nil
	case DedupRuleGeneration:
		return DedupRuleGeneration, nil
	case DedupRuleLifecycle:
		return DedupRuleLifecycle, nil
	}
	return "", fmt.Errorf("unknown dedup rule %q (want all|generation|lifecycle)", s)
}

func (r DedupRule) includes(other DedupRule) bool {
	return r == DedupRuleAll || r == "" || r == other
}

// DedupKey groups events that may be copies of each other. Missing order, SKU and fee
// type are grouped as empty strings.
type DedupKey struct {
	AccountId     string           `json:"account_id"`
	AmazonOrderId string           `json:"amazon_order_id"`
	Sku           string           `json:"sku"`
	FeeType       string           `json:"fee_type"`
	EventType     models.EventType `json:"event_type"`
}

func KeyOf(e models.FinancialEvent) DedupKey {
	return DedupKey{
		AccountId:     e.AccountId,
		AmazonOrderId: e.OrderId(),
		Sku:           e.SkuValue(),
		FeeType:       e.FeeTypeValue(),
		EventType:     e.EventType,
	}
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.AccountId, k.AmazonOrderId, k.Sku, k.FeeType, k.EventType)
}

type DedupOptions struct {
	Rule DedupRule
}

// Removal is one event marked as a duplicate of KeptId.
type Removal struct {
	EventId int       `json:"event_id"`
	KeptId  int       `json:"kept_id"`
	Rule    DedupRule `json:"rule"`
}

// GroupDecision is the outcome for one key that has more than one event.
type GroupDecision struct {
	Key             DedupKey  `json:"key"`
	Events          int       `json:"events"`
	KeepIds         []int     `json:"keep_ids"`
	Removals        []Removal `json:"removals"`
	Ambiguous       bool      `json:"ambiguous"`
	AmbiguousReason string    `json:"ambiguous_reason,omitempty"`
}

func (g GroupDecision) RemoveIds() []int {
	ids := make([]int, 0, len(g.Removals))
	for _, r := range g.Removals {
		ids = append(ids, r.EventId)
	}
	return ids
}

type DedupResult struct {
	Rule            DedupRule       `json:"rule"`
	TotalEvents     int             `json:"total_events"`
	Groups          int             `json:"groups"`
	DuplicateGroups int             `json:"duplicate_groups"`
	AmbiguousGroups int             `json:"ambiguous_groups"`
	Decisions       []GroupDecision `json:"decisions"`
	KeepIds         []int           `json:"keep_ids"`
	RemoveIds       []int           `json:"remove_ids"`
}

// Removals flattens every group's removals, ordered by group key.
func (r DedupResult) Removals() []Removal {
	var out []Removal
	for _, g := range r.Decisions {
		out = append(out, g.Removals...)
	}
	return out
}

// PartitionDuplicates splits events into keep and remove sets.
//
// Generation rule: in a group holding both Current and Legacy events the Legacy ones
// are removed. Lifecycle rule: a DeferredTransaction group, or one whose members carry
// a transaction status, keeps only the latest posted event (equal posted dates keep the
// lowest ID). A group of more than one event that neither rule decides is ambiguous and
// left untouched. A single event is never removed.
func PartitionDuplicates(events []models.FinancialEvent, opts DedupOptions) DedupResult {
	rule := opts.Rule
	if rule == "" {
		rule = DedupRuleAll
	}
	groups := make(map[DedupKey][]models.FinancialEvent)
	for _, e := range events {
		k := KeyOf(e)
		groups[k] = append(groups[k], e)
	}
	keys := make([]DedupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	result := DedupResult{
		Rule:        rule,
		TotalEvents: len(events),
		Groups:      len(groups),
		KeepIds:     []int{},
		RemoveIds:   []int{},
	}
	for _, k := range keys {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		if len(group) == 1 {
			result.KeepIds = append(result.KeepIds, group[0].ID)
			continue
		}

		decision := decideGroup(k, group, rule)
		result.Decisions = append(result.Decisions, decision)
		result.KeepIds = append(result.KeepIds, decision.KeepIds...)
		result.RemoveIds = append(result.RemoveIds, decision.RemoveIds()...)
		if len(decision.Removals) > 0 {
			result.DuplicateGroups++
		}
		if decision.Ambiguous {
			result.AmbiguousGroups++
		}
	}
	sort.Ints(result.KeepIds)
	sort.Ints(result.RemoveIds)
	return result
}

func decideGroup(k DedupKey, group []models.FinancialEvent, rule DedupRule) GroupDecision {
	decision := GroupDecision{Key: k, Events: len(group)}
	remaining := group

	if rule.includes(DedupRuleGeneration) {
		var current, legacy, rest []models.FinancialEvent
		for _, e := range group {
			switch e.SourceGeneration {
			case models.SourceGenerationCurrent:
				current = append(current, e)
			case models.SourceGenerationLegacy:
				legacy = append(legacy, e)
			default:
				rest = append(rest, e)
			}
		}
		if len(current) > 0 && len(legacy) > 0 {
			for _, e := range legacy {
				decision.Removals = append(decision.Removals, Removal{EventId: e.ID, KeptId: current[0].ID, Rule: DedupRuleGeneration})
			}
			remaining = append(append([]models.FinancialEvent{}, current...), rest...)
			sort.Slice(remaining, func(i, j int) bool { return remaining[i].ID < remaining[j].ID })
		}
	}

	if len(remaining) > 1 && rule.includes(DedupRuleLifecycle) && lifecycleApplies(k, remaining) {
		ordered := append([]models.FinancialEvent{}, remaining...)
		sort.SliceStable(ordered, func(i, j int) bool {
			if !ordered[i].PostedDate.Equal(ordered[j].PostedDate) {
				return ordered[i].PostedDate.After(ordered[j].PostedDate)
			}
			return ordered[i].ID < ordered[j].ID
		})
		kept := ordered[0]
		for _, e := range ordered[1:] {
			decision.Removals = append(decision.Removals, Removal{EventId: e.ID, KeptId: kept.ID, Rule: DedupRuleLifecycle})
		}
		// generation removals pointed at a survivor that may now be gone
		for i := range decision.Removals {
			decision.Removals[i].KeptId = kept.ID
		}
		remaining = []models.FinancialEvent{kept}
	}

	for _, e := range remaining {
		decision.KeepIds = append(decision.KeepIds, e.ID)
	}
	sort.Ints(decision.KeepIds)
	sort.Slice(decision.Removals, func(i, j int) bool { return decision.Removals[i].EventId < decision.Removals[j].EventId })

	if len(decision.Removals) == 0 {
		decision.Ambiguous = true
		decision.AmbiguousReason = ambiguousReason(k, group, rule)
	}
	return decision
}

func lifecycleApplies(k DedupKey, group []models.FinancialEvent) bool {
	if k.EventType == models.EventTypeDeferredTransaction {
		return true
	}
	for _, e := range group {
		if e.TransactionStatus != models.TransactionStatusNone {
			return true
		}
	}
	return false
}

func ambiguousReason(k DedupKey, group []models.FinancialEvent, rule DedupRule) string {
	switch rule {
	case DedupRuleGeneration:
		return fmt.Sprintf("%d events without a Current/Legacy pair", len(group))
	case DedupRuleLifecycle:
		if !lifecycleApplies(k, group) {
			return fmt.Sprintf("%d events without deferred/released markers", len(group))
		}
	}
	return fmt.Sprintf("%d events; no generation pair and no deferred/released markers", len(group))
}
