package engines

const xaiBaseURL = "https://api.x.ai/v1"

// NewXAI returns an OpenAI adapter pointed at the xAI endpoint.
func NewXAI(s Spec) *OpenAI {
	return newOpenAICompatible(VendorXAI, s, xaiBaseURL)
}
