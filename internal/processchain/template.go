package processchain

import (
	"encoding/json"
	"fmt"
)

// TemplateParam locates the input of a stored chain template that receives
// the region id list. Param is tried first; StepIndex/InputIndex is used when
// no step declares that input.
type TemplateParam struct {
	Param      string
	StepIndex  int
	InputIndex int
}

// DefaultGeoIDParam matches the model setup template.
var DefaultGeoIDParam = TemplateParam{Param: "geoids", StepIndex: 1, InputIndex: 2}

// SetTemplateValue decodes a stored template and sets the located input to
// value. The template is kept as generic JSON so fields this service does not
// model survive the round trip.
func SetTemplateValue(template json.RawMessage, at TemplateParam, value any) (map[string]any, error) {
	var chain map[string]any
	if err := json.Unmarshal(template, &chain); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	list, ok := chain["list"].([]any)
	if !ok {
		return nil, fmt.Errorf("template has no step list")
	}

	if at.Param != "" {
		for _, s := range list {
			inputs := stepInputs(s)
			for _, in := range inputs {
				if p, ok := in.(map[string]any); ok && p["param"] == at.Param {
					p["value"] = value
					return chain, nil
				}
			}
		}
	}

	if at.StepIndex < 0 || at.StepIndex >= len(list) {
		return nil, fmt.Errorf("template has %d steps, want index %d", len(list), at.StepIndex)
	}
	inputs := stepInputs(list[at.StepIndex])
	if at.InputIndex < 0 || at.InputIndex >= len(inputs) {
		return nil, fmt.Errorf("template step %d has %d inputs, want index %d", at.StepIndex, len(inputs), at.InputIndex)
	}
	p, ok := inputs[at.InputIndex].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template step %d input %d is not an object", at.StepIndex, at.InputIndex)
	}
	p["value"] = value
	return chain, nil
}

func stepInputs(step any) []any {
	s, ok := step.(map[string]any)
	if !ok {
		return nil
	}
	inputs, _ := s["inputs"].([]any)
	return inputs
}
