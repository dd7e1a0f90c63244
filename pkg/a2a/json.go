package a2a

import "encoding/json"

// taskAlias avoids recursing into the custom (un)marshalers.
type taskAlias Task

// knownTaskFields are the JSON keys owned by the Task struct. Anything else
// read off the wire is preserved in Extra so externally-written records
// round-trip without loss.
var knownTaskFields = map[string]bool{
	"id":        true,
	"contextId": true,
	"status":    true,
	"history":   true,
	"artifacts": true,
	"metadata":  true,
}

// UnmarshalJSON decodes the known fields and stashes unknown top-level keys
// in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if knownTaskFields[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*t = Task(alias)
	return nil
}

// MarshalJSON encodes the known fields and re-emits any preserved unknown
// keys alongside them.
func (t Task) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(taskAlias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, val := range t.Extra {
		if _, owned := merged[key]; !owned {
			merged[key] = val
		}
	}
	return json.Marshal(merged)
}
