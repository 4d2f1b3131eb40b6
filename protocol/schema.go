package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dsbsim/dsb/model"
	"github.com/xeipuuv/gojsonschema"
)

// slaveTypeDescriptionSchema constrains the JSON projection of a
// SlaveTypeDescription used to sanity-check DESCRIBE replies before
// they're handed to callers — grounded on
// _examples/C360Studio-semstreams's use of gojsonschema to validate
// inbound component manifests before they enter the component registry.
const slaveTypeDescriptionSchema = `{
  "type": "object",
  "required": ["Name", "UUID", "Variables"],
  "properties": {
    "Name": {"type": "string", "minLength": 1},
    "UUID": {"type": "string", "minLength": 1},
    "Variables": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["ID", "Name", "DataType", "Causality", "Variability"],
        "properties": {
          "ID": {"type": "integer", "minimum": 0},
          "Name": {"type": "string", "minLength": 1},
          "DataType": {"type": "integer", "minimum": 0, "maximum": 3},
          "Causality": {"type": "integer", "minimum": 0, "maximum": 4},
          "Variability": {"type": "integer", "minimum": 0, "maximum": 4}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(slaveTypeDescriptionSchema)

// ValidateSlaveTypeDescription checks td's JSON projection against the
// structural schema above, catching a malformed DESCRIPTION reply (e.g. a
// misbehaving slave instance reporting an out-of-range DataType) before it
// propagates to the execution manager.
func ValidateSlaveTypeDescription(td model.SlaveTypeDescription) error {
	doc, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("protocol: marshal type description for validation: %w", err)
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("protocol: schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("protocol: slave type description failed validation: %v", result.Errors())
	}
	return nil
}
