package kernel

import "maps"

// Override returns a copy of def with extra keyword arguments merged into
// every stage of the given class. kwargs maps a stage class to the
// arguments to set; set arguments replace the definition's values.
func Override(def Definition, kwargs map[string]map[string]any) Definition {
	if len(kwargs) == 0 {
		return def
	}

	stages := make([]StageSpec, len(def.Stages))
	for i, s := range def.Stages {
		extra, ok := kwargs[s.Class]
		if ok && len(extra) > 0 {
			merged := maps.Clone(s.Kwargs)
			if merged == nil {
				merged = make(map[string]any, len(extra))
			}
			maps.Copy(merged, extra)
			s.Kwargs = merged
		}
		stages[i] = s
	}
	def.Stages = stages
	return def
}

// Overridden wraps k so that its definition carries kwargs.
func Overridden(k Kernel, kwargs map[string]map[string]any) Kernel {
	return KernelFunc(func() Definition {
		return Override(k.Define(), kwargs)
	})
}
