package record

import (
	"fmt"
	"strings"
	"time"
)

// Record is the canonical, persisted shape of one token's metrics for one day.
// Symbol and FetchedAt form the natural key.
type Record struct {
	Symbol          string         `json:"symbol"`
	FetchedAt       time.Time      `json:"fetchedAt"`
	UpdateTimestamp time.Time      `json:"updateTimestamp"`
	UpdateCount     int64          `json:"updateCount"`
	Metrics         map[string]any `json:"metrics,omitempty"`
}

// Metric returns a pass-through metric by canonical key.
func (r Record) Metric(key string) (any, bool) {
	v, ok := r.Metrics[key]
	return v, ok
}

// Shape selects one of the upstream field-naming conventions.
type Shape int

const (
	// ShapeVerbose uses full field names such as "symbol" and "volume_24h".
	ShapeVerbose Shape = iota
	// ShapeCompact uses abbreviated keys such as "s" and "v".
	ShapeCompact
)

func (s Shape) String() string {
	switch s {
	case ShapeVerbose:
		return "verbose"
	case ShapeCompact:
		return "compact"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape maps a configured name onto a Shape.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "verbose":
		return ShapeVerbose, nil
	case "compact":
		return ShapeCompact, nil
	}
	return 0, fmt.Errorf("unknown shape %q", name)
}

// field maps one canonical key onto its source key per shape.
type field struct {
	canonical string
	verbose   string
	compact   string
}

func (f field) source(s Shape) string {
	if s == ShapeCompact {
		return f.compact
	}
	return f.verbose
}

const canonicalSymbol = "symbol"

// fields is the fixed projection list. The first entry is the identifying field.
var fields = []field{
	{canonicalSymbol, "symbol", "s"},
	{"id", "id", "id"},
	{"name", "name", "n"},
	{"price", "price", "p"},
	{"price_btc", "price_btc", "p_btc"},
	{"volume_24h", "volume_24h", "v"},
	{"volatility", "volatility", "vt"},
	{"circulating_supply", "circulating_supply", "cs"},
	{"max_supply", "max_supply", "ms"},
	{"percent_change_1h", "percent_change_1h", "pch"},
	{"percent_change_24h", "percent_change_24h", "pc"},
	{"percent_change_7d", "percent_change_7d", "pc7d"},
	{"percent_change_30d", "percent_change_30d", "pc30d"},
	{"market_cap", "market_cap", "mc"},
	{"market_cap_rank", "market_cap_rank", "mcr"},
	{"interactions_24h", "interactions_24h", "i"},
	{"interactions_24h_prev", "interactions_24h_prev", "interactions_24h_prev"},
	{"social_volume", "social_volume", "social_volume"},
	{"social_volume_24h_rank", "social_volume_24h_rank", "svr"},
	{"social_dominance", "social_dominance", "sd"},
	{"market_dominance", "market_dominance", "md"},
	{"market_dominance_prev", "market_dominance_prev", "md_p"},
	{"galaxy_score", "galaxy_score", "gs"},
	{"galaxy_score_previous", "galaxy_score_previous", "ags"},
	{"alt_rank", "alt_rank", "acr"},
	{"alt_rank_previous", "alt_rank_previous", "acr_p"},
	{"sentiment", "sentiment", "ss"},
	{"volume_24h_rank", "volume_24h_rank", "vr"},
	{"categories", "categories", "tc"},
	{"topic", "topic", "tp"},
	{"topic_rank", "topic_rank", "tr"},
	{"topic_rank_1h_previous", "topic_rank_1h_previous", "tr_p_1h"},
	{"topic_rank_24h_previous", "topic_rank_24h_previous", "tr_p_24h"},
	{"engagements_1h", "engagements_1h", "e1h"},
	{"engagements_24h", "engagements_24h", "e24h"},
	{"contributors_created", "contributors_created", "cc"},
	{"contributors_active", "contributors_active", "ca"},
	{"contributors_active_prev", "contributors_active_prev", "contributors_active_prev"},
	{"posts_created", "posts_created", "psc"},
	{"posts_active", "posts_active", "psa"},
}

// IdentifyingKey is the source key holding the symbol for s.
func (s Shape) IdentifyingKey() string { return fields[0].source(s) }

// canonicalKeys lists every persisted metric key, symbol first.
func canonicalKeys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.canonical)
	}
	return out
}
