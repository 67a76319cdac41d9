// Package apperrors defines the stable, machine-readable error taxonomy
// surfaced by the engine. Codes follow the NL2SQL-{CATEGORY}-{NUMBER}
// format so callers can branch on them without parsing messages.
package apperrors

// Category groups error codes by subsystem.
type Category string

const (
	CategoryDatabase   Category = "DB"
	CategoryValidation Category = "VAL"
	CategoryLLM        Category = "LLM"
	CategoryAuth       Category = "AUTH"
	CategorySystem     Category = "SYS"
	CategoryRequest    Category = "REQ"
)

// Code is a standardized error code definition.
type Code struct {
	Code        string
	Category    Category
	Message     string
	Description string
	HTTPStatus  int
	Retryable   bool
}

// Database errors (1000-1999). The core never executes SQL itself; these
// exist so collaborator-reported failures can be classified consistently.
var (
	DBConnectionFailed = Code{
		Code:        "NL2SQL-DB-1001",
		Category:    CategoryDatabase,
		Message:     "Database connection failed",
		Description: "Unable to establish connection to the database",
		HTTPStatus:  503,
		Retryable:   true,
	}
	DBTimeout = Code{
		Code:        "NL2SQL-DB-1007",
		Category:    CategoryDatabase,
		Message:     "Database query timeout",
		Description: "The database query exceeded the maximum execution time",
		HTTPStatus:  504,
		Retryable:   true,
	}
)

// Validation errors (2000-2999).
var (
	ValInvalidQueryFormat = Code{
		Code:        "NL2SQL-VAL-2001",
		Category:    CategoryValidation,
		Message:     "Invalid query format",
		Description: "The natural language query format is invalid or empty",
		HTTPStatus:  400,
	}
	ValMissingScopingValue = Code{
		Code:        "NL2SQL-VAL-2002",
		Category:    CategoryValidation,
		Message:     "Scoping value is required",
		Description: "Entity scoping value is required for data isolation",
		HTTPStatus:  400,
	}
	ValInjectionDetected = Code{
		Code:        "NL2SQL-VAL-2003",
		Category:    CategoryValidation,
		Message:     "SQL injection attempt detected",
		Description: "The request contains potentially malicious SQL code",
		HTTPStatus:  400,
	}
	ValInvalidScopingFilter = Code{
		Code:        "NL2SQL-VAL-2004",
		Category:    CategoryValidation,
		Message:     "Invalid scoping filter",
		Description: "The query does not include proper entity scoping filters",
		HTTPStatus:  400,
	}
	ValTooManyTables = Code{
		Code:        "NL2SQL-VAL-2005",
		Category:    CategoryValidation,
		Message:     "Too many tables in query",
		Description: "The query references more tables than allowed by security policy",
		HTTPStatus:  400,
	}
	ValForbiddenOperation = Code{
		Code:        "NL2SQL-VAL-2006",
		Category:    CategoryValidation,
		Message:     "Operation not allowed",
		Description: "The requested database operation is not permitted",
		HTTPStatus:  403,
	}
	ValMultipleStatements = Code{
		Code:        "NL2SQL-VAL-2007",
		Category:    CategoryValidation,
		Message:     "Multiple statements not allowed",
		Description: "Only single SQL statements are permitted for security",
		HTTPStatus:  400,
	}
	ValSchemaGraphInvalid = Code{
		Code:        "NL2SQL-VAL-2008",
		Category:    CategoryValidation,
		Message:     "Schema graph is invalid",
		Description: "The database schema configuration is invalid or corrupted",
		HTTPStatus:  500,
	}
	ValGenerationFailed = Code{
		Code:        "NL2SQL-VAL-2009",
		Category:    CategoryValidation,
		Message:     "SQL validation failed",
		Description: "Generated SQL could not be validated within the attempt budget",
		HTTPStatus:  422,
	}
)

// LLM provider errors (3000-3999).
var (
	LLMAPIKeyMissing = Code{
		Code:        "NL2SQL-LLM-3001",
		Category:    CategoryLLM,
		Message:     "LLM API key missing",
		Description: "API key for the completion provider is not configured",
		HTTPStatus:  500,
	}
	LLMRateLimited = Code{
		Code:        "NL2SQL-LLM-3002",
		Category:    CategoryLLM,
		Message:     "LLM API rate limited",
		Description: "Rate limit exceeded for the completion provider",
		HTTPStatus:  429,
		Retryable:   true,
	}
	LLMUnavailable = Code{
		Code:        "NL2SQL-LLM-3003",
		Category:    CategoryLLM,
		Message:     "LLM API unavailable",
		Description: "The completion provider is currently unavailable",
		HTTPStatus:  503,
		Retryable:   true,
	}
	LLMInvalidResponse = Code{
		Code:        "NL2SQL-LLM-3004",
		Category:    CategoryLLM,
		Message:     "Invalid LLM response",
		Description: "The completion provider returned a malformed response",
		HTTPStatus:  502,
	}
	LLMCircuitOpen = Code{
		Code:        "NL2SQL-LLM-3006",
		Category:    CategoryLLM,
		Message:     "LLM circuit breaker is open",
		Description: "The completion provider is temporarily disabled due to repeated failures",
		HTTPStatus:  503,
		Retryable:   true,
	}
)

// Authentication/authorization errors (4000-4999).
var (
	AuthInsufficientPermissions = Code{
		Code:        "NL2SQL-AUTH-4002",
		Category:    CategoryAuth,
		Message:     "Insufficient permissions",
		Description: "The user does not have sufficient permissions for this operation",
		HTTPStatus:  403,
	}
	AuthInvalidRole = Code{
		Code:        "NL2SQL-AUTH-4003",
		Category:    CategoryAuth,
		Message:     "Invalid role",
		Description: "The supplied user role is not recognized",
		HTTPStatus:  400,
	}
)

// System errors (5000-5999).
var (
	SysInternalError = Code{
		Code:        "NL2SQL-SYS-5001",
		Category:    CategorySystem,
		Message:     "Internal server error",
		Description: "An unexpected internal error occurred",
		HTTPStatus:  500,
	}
	SysConfigurationError = Code{
		Code:        "NL2SQL-SYS-5002",
		Category:    CategorySystem,
		Message:     "Configuration error",
		Description: "The system configuration is invalid or missing required settings",
		HTTPStatus:  500,
	}
)

// Request processing errors (6000-6999).
var (
	ReqMalformed = Code{
		Code:        "NL2SQL-REQ-6001",
		Category:    CategoryRequest,
		Message:     "Malformed request",
		Description: "The request format is invalid or missing required fields",
		HTTPStatus:  400,
	}
	ReqTimeout = Code{
		Code:        "NL2SQL-REQ-6004",
		Category:    CategoryRequest,
		Message:     "Request timeout",
		Description: "The request processing exceeded the maximum allowed time",
		HTTPStatus:  408,
		Retryable:   true,
	}
)

var registry = []Code{
	DBConnectionFailed, DBTimeout,
	ValInvalidQueryFormat, ValMissingScopingValue, ValInjectionDetected,
	ValInvalidScopingFilter, ValTooManyTables, ValForbiddenOperation,
	ValMultipleStatements, ValSchemaGraphInvalid, ValGenerationFailed,
	LLMAPIKeyMissing, LLMRateLimited, LLMUnavailable, LLMInvalidResponse, LLMCircuitOpen,
	AuthInsufficientPermissions, AuthInvalidRole,
	SysInternalError, SysConfigurationError,
	ReqMalformed, ReqTimeout,
}

// Lookup returns the code definition for a code string, if registered.
func Lookup(code string) (Code, bool) {
	for _, c := range registry {
		if c.Code == code {
			return c, true
		}
	}
	return Code{}, false
}

// ByCategory returns all registered codes in the given category.
func ByCategory(cat Category) []Code {
	var out []Code
	for _, c := range registry {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}
