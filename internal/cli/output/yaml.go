package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter writes YAML using the values' JSON field names.
type YAMLFormatter struct{}

func (YAMLFormatter) Format(w io.Writer, data any) error {
	// Round-trip through JSON so struct json tags name the YAML keys.
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
