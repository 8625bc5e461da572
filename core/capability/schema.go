package capability

import (
	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
)

// ProfileSchema returns the JSON schema for Profile, used by editor and
// configuration tooling to validate capability declarations before they reach
// the orchestrator.
func ProfileSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(&Profile{})
}

// Clone returns a deep copy of the profile so callers can hold on to it
// without sharing descriptor slices with configuration tooling.
func (p Profile) Clone() Profile {
	var clone Profile
	copier.CopyWithOption(&clone, &p, copier.Option{DeepCopy: true})
	return clone
}
