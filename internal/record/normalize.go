package record

import "lunarcollector/internal/provider"

// Normalize projects every raw token of env into a Record using shape.
// Tokens whose identifying field is absent, null, empty or not a string are
// dropped; this is a filter, not an error. Output keeps input order.
func Normalize(env *provider.Envelope, shape Shape) []Record {
	if env == nil {
		return nil
	}
	out := make([]Record, 0, len(env.Data))
	for _, tok := range env.Data {
		if r, ok := Project(tok, shape); ok {
			out = append(out, r)
		}
	}
	return out
}

// Project maps one raw token onto the canonical schema.
// It reports false when the token has no usable symbol.
func Project(tok provider.RawToken, shape Shape) (Record, bool) {
	sym, _ := tok.Fields[shape.IdentifyingKey()].(string)
	if sym == "" {
		return Record{}, false
	}

	metrics := make(map[string]any, len(fields)-1)
	for _, f := range fields[1:] {
		v, ok := tok.Fields[f.source(shape)]
		if !ok || v == nil {
			continue
		}
		metrics[f.canonical] = v
	}

	return Record{
		Symbol:          sym,
		FetchedAt:       tok.FetchedAt,
		UpdateTimestamp: tok.UpdateTimestamp,
		Metrics:         metrics,
	}, true
}
