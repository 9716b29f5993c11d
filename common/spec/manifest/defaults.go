package manifest

// Built-in hardening for the well-known dice tool pair. Dice servers
// commonly declare sum_dice's rolls argument loosely, and chat models then
// pass it as prose; the host ships repair and override rules for this shape
// so an empty manifest section still behaves sensibly. Manifest entries for
// the same tool (and parameter) take precedence.

func defaultRepairs() []RepairRule {
	return []RepairRule{
		{Tool: "sum_dice", Param: "rolls", Shape: ShapeIntArray, Cache: "rolls"},
	}
}

func defaultCacheables() []CacheRule {
	return []CacheRule{
		{Tool: "roll_dice", Category: "rolls"},
	}
}

func defaultOverrides() []SchemaOverride {
	return []SchemaOverride{
		{
			Tool: "sum_dice",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"rolls": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "integer"},
						"description": "The list of integer dice rolls to sum.",
					},
				},
				"required": []any{"rolls"},
			},
		},
	}
}

// EffectiveRepairs merges the built-in repair rules with the manifest's;
// a manifest rule for the same (tool, param) pair replaces the built-in.
func (c *Config) EffectiveRepairs() []RepairRule {
	out := defaultRepairs()
	for _, r := range c.Repairs {
		replaced := false
		for i, d := range out {
			if d.Tool == r.Tool && d.Param == r.Param {
				out[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, r)
		}
	}
	return out
}

// EffectiveCacheables merges the built-in cache rules with the manifest's;
// a manifest rule for the same tool replaces the built-in.
func (c *Config) EffectiveCacheables() []CacheRule {
	out := defaultCacheables()
	for _, r := range c.Cacheables {
		replaced := false
		for i, d := range out {
			if d.Tool == r.Tool {
				out[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, r)
		}
	}
	return out
}

// EffectiveOverrides merges the built-in schema overrides with the
// manifest's; a manifest override for the same tool replaces the built-in.
func (c *Config) EffectiveOverrides() []SchemaOverride {
	out := defaultOverrides()
	for _, o := range c.Overrides {
		replaced := false
		for i, d := range out {
			if d.Tool == o.Tool {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}
