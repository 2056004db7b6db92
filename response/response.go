package response

import (
	"encoding/json"
	"net/http"
)

// V1Response is the consistent JSON envelope for all API responses
type V1Response struct {
	Result   interface{} `json:"result"`
	Messages []string    `json:"messages"`
}

// WriteResponse will write the result as a JSON envelope with the given status
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}, statusCode ...int) {
	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(V1Response{
		Result:   result,
		Messages: []string{},
	})
}

// WriteError will write the error envelope. Passing a non-*Error will be
// reported as an unexpected error without leaking internals to the client
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	respErr, ok := err.(*Error)
	if !ok {
		respErr = ErrUnexpected()
	}
	messages := respErr.Messages
	if len(messages) == 0 && len(respErr.Message) > 0 {
		messages = []string{respErr.Message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(respErr.StatusCode)
	json.NewEncoder(w).Encode(V1Response{
		Result:   respErr.Result,
		Messages: messages,
	})
}
