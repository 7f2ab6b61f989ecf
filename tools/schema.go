// Package tools defines the market-data capabilities exposed to the agent.
package tools

// ObjectSchema builds JSON schema properties for a tool input object. Extra
// string arguments name the required properties.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{}
	for name, prop := range properties {
		schema[name] = prop
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty describes a string input field.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}
