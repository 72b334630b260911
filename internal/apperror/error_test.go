package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("nonce too low")
	err := New(CodeNonceDesync, WithCause(cause), WithContext("nonce=7"))

	wrapped := fmt.Errorf("queue: %w", err)

	if !errors.Is(wrapped, New(CodeNonceDesync)) {
		t.Error("expected match on same code")
	}
	if errors.Is(wrapped, New(CodeSubmissionFailed)) {
		t.Error("unexpected match on different code")
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to be reachable")
	}
	if got := GetCode(wrapped); got != CodeNonceDesync {
		t.Errorf("GetCode = %s", got)
	}
}

func TestGetCode_PlainError(t *testing.T) {
	if got := GetCode(errors.New("boom")); got != CodeUnknownError {
		t.Fatalf("GetCode = %s, want %s", got, CodeUnknownError)
	}
}

func TestNew_MessageAndFormatting(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		message string
		text    string
	}{
		{
			name:    "catalogued",
			err:     New(CodeContractNotFound, WithContext("erc20")),
			message: "Contract not registered",
			text:    "CONTRACT_NOT_FOUND: Contract not registered (erc20)",
		},
		{
			name:    "with cause",
			err:     New(CodeGasEstimationFailed, WithCause(errors.New("execution reverted"))),
			message: "Gas estimation failed",
			text:    "GAS_ESTIMATION_FAILED: Gas estimation failed: execution reverted",
		},
		{
			name:    "uncatalogued",
			err:     New(Code("SOMETHING_NEW")),
			message: "SOMETHING_NEW",
			text:    "SOMETHING_NEW: SOMETHING_NEW",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Message != tt.message {
				t.Errorf("message = %q, want %q", tt.err.Message, tt.message)
			}
			if got := tt.err.Error(); got != tt.text {
				t.Errorf("Error() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestAppError_LogArgs(t *testing.T) {
	err := New(CodeNonceDesync, WithContext("nonce 9"), WithCause(errors.New("nonce too low")))

	want := []any{"code", "NONCE_DESYNC", "error", "Account nonce out of sync", "context", "nonce 9", "cause", "nonce too low"}
	got := err.LogArgs()
	if len(got) != len(want) {
		t.Fatalf("LogArgs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWrap_KeepsExistingAppError(t *testing.T) {
	inner := New(CodeTxReverted)
	if got := Wrap(fmt.Errorf("confirm: %w", inner), CodeInternalError, "0xabc"); got != inner || got.Context != "0xabc" {
		t.Fatalf("Wrap = %v, want original error with context", got)
	}
	if got := Wrap(errors.New("boom"), CodeInternalError, ""); got.Code != CodeInternalError {
		t.Fatalf("Wrap code = %s", got.Code)
	}
	if Wrap(nil, CodeInternalError, "") != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
}
