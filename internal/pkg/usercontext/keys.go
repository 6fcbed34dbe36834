package usercontext

// Locals keys shared by middlewares and controllers
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
	KeyUsage       = "usage_status"
)

// Trusted upstream headers
const (
	HeaderUserID        = "X-User-ID"
	HeaderInternalToken = "X-Internal-Token"
)
