package constants

type ContextKey string

const (
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	LoggerKey    ContextKey = "logger"
	ParamsKey    ContextKey = "params"
	TenantIDKey  ContextKey = "tenantID"
	UserIDKey    ContextKey = "userID"
	SessionKey   ContextKey = "session"
	RequestIDKey ContextKey = "requestID"
)
