package sendreminder

// payloadSchema validates the reminder job payload before dispatch. A payload
// that fails here is malformed at the producer and retrying cannot fix it.
func payloadSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"expoToken", "title", "subscriptionTitle", "subscriptionId"},
		"properties": map[string]interface{}{
			"expoToken": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
			"title": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
				"maxLength": 500,
			},
			"subscriptionTitle": map[string]interface{}{
				"type":      "string",
				"maxLength": 500,
			},
			"subscriptionId": map[string]interface{}{
				"type":      "string",
				"minLength": 1,
			},
		},
		"additionalProperties": false,
	}
}
