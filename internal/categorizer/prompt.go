package categorizer

import "strings"

func buildPrompt(rawRow string) string {
	var b strings.Builder
	b.WriteString("You categorize a single bank statement row.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Identify the merchant or payee (the entity) the money went to or came from.\n")
	b.WriteString("- Use the short, canonical business name (e.g. \"Woolworths\", not \"WOOLWORTHS METRO 1234 SYDNEY\").\n")
	b.WriteString("- Pick a broad spending category (e.g. \"Groceries\", \"Transport\", \"Dining\").\n")
	b.WriteString("- Write a short human description of the transaction.\n\n")
	b.WriteString("Return ONLY a JSON object with these fields:\n")
	b.WriteString("- \"entityName\": string, or null if the payee cannot be determined\n")
	b.WriteString("- \"category\": string\n")
	b.WriteString("- \"description\": string\n\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n\n")
	b.WriteString("Statement row:\n")
	b.WriteString(rawRow)
	b.WriteString("\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding text from a model
// response, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
