package types

import "fmt"

// ProcessChainVersion is the chain format version understood by the engine.
const ProcessChainVersion = "1"

// Param is one module parameter. Values referencing maps produced by earlier
// steps do so by name; the engine resolves them at execution time.
type Param struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

// Step is one GIS module invocation in a process chain.
type Step struct {
	Module  string  `json:"module"`
	ID      string  `json:"id"`
	Flags   string  `json:"flags,omitempty"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs,omitempty"`
}

// Input returns the value of the named input parameter.
func (s Step) Input(name string) (string, bool) {
	for _, p := range s.Inputs {
		if p.Param == name {
			return p.Value, true
		}
	}
	return "", false
}

// ProcessChain is the job description submitted to the engine.
type ProcessChain struct {
	List    []Step `json:"list"`
	Version string `json:"version"`
}

func NewProcessChain(steps []Step) *ProcessChain {
	return &ProcessChain{List: steps, Version: ProcessChainVersion}
}

// Validate checks the structural invariants of the chain.
func (pc *ProcessChain) Validate() error {
	if len(pc.List) == 0 {
		return fmt.Errorf("process chain is empty")
	}
	seen := make(map[string]int, len(pc.List))
	for i, step := range pc.List {
		if step.Module == "" {
			return fmt.Errorf("step %d has no module", i)
		}
		if step.ID == "" {
			return fmt.Errorf("step %d (%s) has no id", i, step.Module)
		}
		if j, ok := seen[step.ID]; ok {
			return fmt.Errorf("duplicate step id %q at positions %d and %d", step.ID, j, i)
		}
		seen[step.ID] = i
	}
	return nil
}

// Target is the engine namespace a chain executes in. An empty Mapset runs
// the chain in an ephemeral mapset with exported results.
type Target struct {
	Location string
	Mapset   string
}
