// internal/response/response.go
package response

import (
	"encoding/json"
	"errors"

	"github.com/newthinker/s3zip/internal/core"
	"github.com/newthinker/s3zip/internal/storage"
)

// Result is the function response: a status code and a JSON encoded body, the
// shape API Gateway and the Lambda console both understand.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Cause        string `json:"cause,omitempty"`
	ProviderCode string `json:"provider_code,omitempty"`
	ProviderMsg  string `json:"provider_message,omitempty"`
}

// JSON builds a result whose body is v encoded as JSON.
func JSON(status int, v any) Result {
	body, err := json.Marshal(v)
	if err != nil {
		return Result{
			StatusCode: 500,
			Body:       `{"message":"failed to encode response"}`,
		}
	}
	return Result{StatusCode: status, Body: string(body)}
}

// Detail converts err into an ErrorDetail. Structured errors keep their code;
// anything else is reported as UNEXPECTED.
func Detail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}

	detail := &ErrorDetail{
		Code:    core.ErrUnexpected.Code,
		Message: err.Error(),
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}

	if code, msg := storage.ProviderError(err); code != "Unknown" {
		detail.ProviderCode = code
		detail.ProviderMsg = msg
	}

	return detail
}

// Decode parses a result body, mainly for callers and tests.
func (r Result) Decode(v any) error {
	return json.Unmarshal([]byte(r.Body), v)
}
