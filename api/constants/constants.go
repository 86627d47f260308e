package constants

// Common error messages
const (
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrInvalidRequestBody = "Invalid request body"
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrDB                 = "DB error"
	ErrFailedToQuery      = "Failed to query"
)

// Settlement workflow errors
const (
	ErrFortnightNotFound    = "fortnight not found"
	ErrFortnightPaid        = "Fortnight is already paid"
	ErrAnotherDraftOpen     = "could not open fortnight: is another draft open?"
	ErrImportNotFound       = "import not found"
	ErrImportOfPaid         = "cannot delete an import of a paid fortnight"
	ErrDuplicateFile        = "duplicate file: already imported into this fortnight"
	ErrItemAlreadyClaimed   = "item already claimed or outside the claim window"
	ErrAdvanceNotFound      = "advance not found"
	ErrDiscountNotFound     = "discount not found or already applied"
	ErrAmountMustBePositive = "amount must be positive"
)

// DB / SQL error templates
const (
	ErrTxStartFailed  = "failed to start transaction: "
	ErrTxCommitFailed = "failed to commit transaction: "
	ErrCommitFailed   = "commit failed: "
	ErrQueryFailed    = "query failed: "
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "Content-Type"
)

// Date formats
const (
	DateTimeFormat = "2006-01-02 15:04:05"
	DateFormat     = "2006-01-02"
	DateFormatAlt  = "02-01-2006"
)
