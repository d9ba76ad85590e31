package capabilities

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/driverhub/driverhub/internal/protocol"
)

// capsSchema gates the shape of the W3C capabilities object before the merge
// algorithm runs: a plain object with an optional alwaysMatch object and an
// optional firstMatch array of objects.
var capsSchema = jsonschema.MustCompileString("capabilities.json", `{
	"type": "object",
	"properties": {
		"alwaysMatch": {"type": "object"},
		"firstMatch": {
			"type": "array",
			"items": {"type": "object"}
		}
	}
}`)

func validateShape(raw any) error {
	if err := capsSchema.Validate(raw); err != nil {
		return protocol.NewError(protocol.ErrorSessionNotCreated,
			"capabilities must be a plain JSON object with optional 'alwaysMatch' object and 'firstMatch' array: "+err.Error())
	}
	return nil
}
