package cashflow

// =============================================================================
// SCENARIO FILTER - Which events take part in a projection run
// =============================================================================

// ScenarioFilter selects events by certainty and decision path.
//
// The zero value includes every decision path. A filter built with
// OnlyPaths includes events tagged with one of the given paths plus every
// untagged event; OnlyPaths() with no arguments keeps untagged events only.
// Unlikely events are excluded by every filter.
type ScenarioFilter struct {
	enabled map[DecisionPathID]struct{}
}

// AllPaths includes events regardless of decision path.
func AllPaths() ScenarioFilter {
	return ScenarioFilter{}
}

// OnlyPaths restricts tagged events to the given decision paths.
func OnlyPaths(ids ...DecisionPathID) ScenarioFilter {
	enabled := make(map[DecisionPathID]struct{}, len(ids))
	for _, id := range ids {
		enabled[id] = struct{}{}
	}
	return ScenarioFilter{enabled: enabled}
}

// Restricted reports whether the filter limits decision paths at all.
func (f ScenarioFilter) Restricted() bool {
	return f.enabled != nil
}

// EnabledPaths lists the enabled decision paths (nil when unrestricted).
func (f ScenarioFilter) EnabledPaths() []DecisionPathID {
	if f.enabled == nil {
		return nil
	}
	ids := make([]DecisionPathID, 0, len(f.enabled))
	for id := range f.enabled {
		ids = append(ids, id)
	}
	return ids
}

// Includes reports whether e contributes to a balance under this filter.
func (f ScenarioFilter) Includes(e ProjectedEvent) bool {
	if e.Certainty == CertaintyUnlikely {
		return false
	}
	if f.enabled != nil && e.DecisionPathID != "" {
		_, ok := f.enabled[e.DecisionPathID]
		return ok
	}
	return true
}
