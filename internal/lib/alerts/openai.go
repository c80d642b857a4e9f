package alerts

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt instructs the model to classify incident reports
const SystemPrompt = `You are a traffic incident analyst for Medellín, Colombia. Your task is to classify raw incident reports from social networks, operator feeds and citizen reports, written in Spanish or English.

Instructions:
- Read the report carefully and rely only on what it says.
- Pick the single incident type that best fits.
- Infer severity from the traffic impact described:
  - critical: road fully closed, fatalities, emergency response blocking lanes
  - high: lanes blocked, injuries, overturned vehicles
  - medium: slow traffic, minor collisions, roadwork with restrictions
  - low: informational, no noticeable delay
- Write a one-line summary in Spanish for travelers, under 120 characters, without times or dates.

Return valid JSON with these exact fields:
- type (enum) – "accident" | "construction" | "event" | "protest" | "weather" | "closure" | "congestion" | "other"
- severity (enum) – "low" | "medium" | "high" | "critical"
- summary (string) – one-line traveler summary`

// ClassificationSchema defines the JSON schema for structured classification output
var ClassificationSchema = openai.ChatCompletionResponseFormatJSONSchema{
	Name:   "alert_classification",
	Strict: true,
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"type": {
				"type": "string",
				"enum": ["accident", "construction", "event", "protest", "weather", "closure", "congestion", "other"],
				"description": "Incident type"
			},
			"severity": {
				"type": "string",
				"enum": ["low", "medium", "high", "critical"],
				"description": "Traffic impact severity"
			},
			"summary": {
				"type": "string",
				"maxLength": 120,
				"description": "One-line traveler summary, no times"
			}
		},
		"required": ["type", "severity", "summary"],
		"additionalProperties": false
	}`),
}
