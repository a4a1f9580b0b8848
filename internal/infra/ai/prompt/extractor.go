package prompt

import "fmt"

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a clinical lab-report parser. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- biomarkers is an array; one entry per distinct measurement found in the document.
- name is the measurement name exactly as printed, lowercased.
- value must be the numeric result only; strip comparison signs and ranges.
- unit is the unit as printed (e.g. "mg/dL", "ng/mL", "%"); empty string if absent.
- confidence is your own 0.0-1.0 certainty that name, value and unit were read correctly.
- Do not invent measurements that are not present in the document.
- If the document contains no lab measurements, return {"biomarkers": []}.

Schema (example with empty values):
{
  "biomarkers": [
    {
      "name": "<string>",
      "value": 0.0,
      "unit": "<string>",
      "confidence": 0.0
    }
  ]
}`
}

// GetUserPrompt wraps the raw document text for the extraction request.
func GetUserPrompt(text string) string {
	return fmt.Sprintf("Extract every lab measurement from the following report and respond with the JSON per schema.\n\n---\n%s", text)
}
