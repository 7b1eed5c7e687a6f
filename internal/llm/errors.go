package llm

import "errors"

var (
	// ErrMissingCredential indicates the selected provider has no API key
	// configured.
	ErrMissingCredential = errors.New("missing provider credential")

	// ErrUnsupportedProvider indicates the model name references a provider
	// the gateway does not know.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidModelFormat indicates a model name that is not
	// provider-qualified ("provider/model-name").
	ErrInvalidModelFormat = errors.New("invalid model format")

	// ErrCompletionFailed indicates the provider returned an error for a
	// completion request.
	ErrCompletionFailed = errors.New("completion failed")
)
