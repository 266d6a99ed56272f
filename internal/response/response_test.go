// internal/response/response_test.go
package response

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/newthinker/s3zip/internal/core"
)

func TestJSON_Success(t *testing.T) {
	res := JSON(200, map[string]string{"message": "ok"})

	if res.StatusCode != 200 {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}

	var body map[string]string
	if err := res.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "ok" {
		t.Errorf("unexpected body %q", res.Body)
	}
}

func TestJSON_Unencodable(t *testing.T) {
	res := JSON(200, map[string]any{"bad": make(chan int)})
	if res.StatusCode != 500 {
		t.Errorf("expected 500, got %d", res.StatusCode)
	}
}

func TestDetail_WithCoreError(t *testing.T) {
	detail := Detail(core.ErrBadPassphrase)

	if detail.Code != "INVALID_PASSPHRASE" {
		t.Errorf("expected INVALID_PASSPHRASE, got %s", detail.Code)
	}
	if detail.Cause != "" {
		t.Errorf("expected no cause, got %s", detail.Cause)
	}
}

func TestDetail_WithProviderError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	detail := Detail(core.WrapError(core.ErrDownloadFailed, apiErr))

	if detail.Code != "DOWNLOAD_FAILED" {
		t.Errorf("expected DOWNLOAD_FAILED, got %s", detail.Code)
	}
	if detail.ProviderCode != "AccessDenied" {
		t.Errorf("expected AccessDenied, got %s", detail.ProviderCode)
	}
	if detail.ProviderMsg != "Access Denied" {
		t.Errorf("expected provider message, got %s", detail.ProviderMsg)
	}
}

func TestDetail_WithStandardError(t *testing.T) {
	detail := Detail(errors.New("boom"))

	if detail.Code != "UNEXPECTED" {
		t.Errorf("expected UNEXPECTED, got %s", detail.Code)
	}
	if detail.Message != "boom" {
		t.Errorf("expected boom, got %s", detail.Message)
	}
	if detail.ProviderCode != "" {
		t.Errorf("expected no provider code, got %s", detail.ProviderCode)
	}
}

func TestDetail_Nil(t *testing.T) {
	if Detail(nil) != nil {
		t.Error("expected nil detail")
	}
}
