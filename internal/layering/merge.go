package layering

// Layer is one named source of field values, e.g. a schema document, a values
// file or command line overrides.
type Layer struct {
	Name   string
	Values map[string]any
}

// Merge composes layers ordered from strongest to weakest. Nested maps merge
// key by key; any other value from a stronger layer replaces the weaker one
// wholesale, slices included. Inputs are never mutated.
func Merge(layers ...Layer) map[string]any {
	merged := map[string]any{}
	for i := len(layers) - 1; i >= 0; i-- {
		merged = mergeMaps(layers[i].Values, merged)
	}
	return merged
}

// Origins reports, for each top-level key of the merged result, the name of
// the strongest layer that set it.
func Origins(layers ...Layer) map[string]string {
	origins := map[string]string{}
	for _, layer := range layers {
		for key := range layer.Values {
			if _, seen := origins[key]; !seen {
				origins[key] = layer.Name
			}
		}
	}
	return origins
}

func mergeMaps(strong, weak map[string]any) map[string]any {
	result := make(map[string]any, len(strong)+len(weak))
	for key, value := range weak {
		result[key] = cloneValue(value)
	}
	for key, value := range strong {
		existing, ok := result[key]
		if !ok {
			result[key] = cloneValue(value)
			continue
		}
		result[key] = mergeValue(value, existing)
	}
	return result
}

func mergeValue(strong, weak any) any {
	strongMap, strongIsMap := asMap(strong)
	weakMap, weakIsMap := asMap(weak)
	if strongIsMap && weakIsMap {
		return mergeMaps(strongMap, weakMap)
	}
	return cloneValue(strong)
}

// asMap accepts the two map shapes YAML and JSON decoders produce.
func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			name, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[name] = item
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(value any) any {
	if m, ok := asMap(value); ok {
		out := make(map[string]any, len(m))
		for key, item := range m {
			out[key] = cloneValue(item)
		}
		return out
	}
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = cloneValue(item)
		}
		return out
	}
	return value
}
