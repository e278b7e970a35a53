package engines

const deepseekBaseURL = "https://api.deepseek.com"

// NewDeepSeek returns an OpenAI adapter pointed at the DeepSeek endpoint.
// deepseek-reasoner streams its chain of thought as reasoning_content, which
// surfaces as reasoning partials.
func NewDeepSeek(s Spec) *OpenAI {
	return newOpenAICompatible(VendorDeepSeek, s, deepseekBaseURL)
}
