package render

import "encoding/json"

// RootKey wraps the context in JSON bodies.
const RootKey = "waiter-error"

type jsonRenderer struct{}

// NewJSON creates the JSON renderer.
func NewJSON() Renderer { return jsonRenderer{} }

func (jsonRenderer) Representation() Representation { return JSON }

func (jsonRenderer) Render(ec ErrorContext) ([]byte, error) {
	body, err := normalize(ec.fields(), RootKey)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(map[string]any{RootKey: body})
	if err != nil {
		return nil, &Error{Path: RootKey, Err: err}
	}
	return out, nil
}
