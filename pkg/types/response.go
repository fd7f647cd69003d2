package types

// DataEnvelope wraps every successful JSON body: {"data": ...}.
type DataEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every failed JSON body: {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
