package analyses

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrUnparseable means a model reply held no usable finding data.
	ErrUnparseable = errors.New("model output unparseable")
)

const (
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeModelRejected  = "MODEL_REJECTED"
	ErrorCodeModelTimeout   = "MODEL_TIMEOUT"
	ErrorCodeModelMalformed = "MODEL_MALFORMED_RESPONSE"
	ErrorCodeInternal       = "INTERNAL_ERROR"
)
