package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Transaction engine error codes
const (
	// Transport errors
	CodeTransportInitFailed      Code = "TRANSPORT_INIT_FAILED"
	CodeTransportLivenessFailed  Code = "TRANSPORT_LIVENESS_FAILED"
	CodeTransportNotConnected    Code = "TRANSPORT_NOT_CONNECTED"
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Signer and nonce errors
	CodeSignerUnavailable   Code = "SIGNER_UNAVAILABLE"
	CodeInvalidPrivateKey   Code = "INVALID_PRIVATE_KEY"
	CodeNonceFetchFailed    Code = "NONCE_FETCH_FAILED"
	CodeNonceDesync         Code = "NONCE_DESYNC"
	CodeFeeSuggestionFailed Code = "FEE_SUGGESTION_FAILED"

	// Queue errors
	CodeGasEstimationFailed Code = "GAS_ESTIMATION_FAILED"
	CodeSubmissionFailed    Code = "SUBMISSION_FAILED"
	CodeUserRejected        Code = "USER_REJECTED"
	CodeTxReverted          Code = "TX_REVERTED"
	CodeReceiptTimeout      Code = "RECEIPT_TIMEOUT"
	CodeQueueClosed         Code = "QUEUE_CLOSED"
	CodeCallCancelled       Code = "CALL_CANCELLED"
	CodeContractNotFound    Code = "CONTRACT_NOT_FOUND"
	CodeContractCallFailed  Code = "CONTRACT_CALL_FAILED"

	// Cache errors
	CodeCacheMiss Code = "CACHE_MISS"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
