package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Transport errors
	CodeTransportInitFailed:      "Failed to initialize transport",
	CodeTransportLivenessFailed:  "Transport liveness check failed",
	CodeTransportNotConnected:    "Transport is not connected",
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeBlockNotFound:            "Block not found",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Signer and nonce errors
	CodeSignerUnavailable:   "No signer available",
	CodeInvalidPrivateKey:   "Invalid private key",
	CodeNonceFetchFailed:    "Failed to fetch account nonce",
	CodeNonceDesync:         "Account nonce out of sync",
	CodeFeeSuggestionFailed: "Failed to suggest transaction fees",

	// Queue errors
	CodeGasEstimationFailed: "Gas estimation failed",
	CodeSubmissionFailed:    "Transaction submission failed",
	CodeUserRejected:        "Transaction rejected by signer",
	CodeTxReverted:          "Transaction reverted",
	CodeReceiptTimeout:      "Timed out waiting for receipt",
	CodeQueueClosed:         "Transaction queue is closed",
	CodeCallCancelled:       "Queued call was cancelled",
	CodeContractNotFound:    "Contract not registered",
	CodeContractCallFailed:  "Smart contract call failed",

	// Cache errors
	CodeCacheMiss: "Cache miss",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
