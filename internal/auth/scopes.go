package auth

// Known OAuth scopes used by the report endpoints.
const (
	ScopeReportsWrite = "reports:write"
	ScopeReportsRead  = "reports:read"
)
