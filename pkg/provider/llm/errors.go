package llm

import "strings"

// UserMessage maps a provider error to a short message that is safe to show
// to an end user. Provider SDK errors frequently embed API keys, request IDs,
// and raw HTTP bodies, so the raw error text must never reach a client.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "api_key is missing") || strings.Contains(msg, "api key is missing"):
		return "Server AI configuration is missing. Please contact support."
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return "AI provider rate limit reached. Please try again shortly."
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "exceeded your current quota"):
		return "AI provider quota exceeded. Please check billing/credits."
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return "AI provider authentication failed. Please contact support."
	case strings.Contains(msg, "404") || strings.Contains(msg, "model_not_found") ||
		strings.Contains(msg, "model not found"):
		return "Selected AI model is unavailable. Please choose another model."
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return "AI provider is temporarily unavailable. Please try again."
	default:
		return "AI request failed. Please try again."
	}
}
