package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	GatewayProviderMercadoPago = "mercadopago"
	GatewayProviderSquare      = "square"

	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvDBHost             = "STOREFRONT_DB_HOST"
	EnvDBUser             = "STOREFRONT_DB_USER"
	EnvDBName             = "STOREFRONT_DB_NAME"
	EnvUseSQLite          = "STOREFRONT_USE_SQLITE"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer          = "STOREFRONT_JWT_ISSUER"
	EnvBackURLBase        = "STOREFRONT_CHECKOUT_BACK_URL_BASE"
	EnvRedirectHintPolicy = "STOREFRONT_CHECKOUT_REDIRECT_HINT_POLICY"
	EnvGatewayProvider    = "STOREFRONT_GATEWAY_PROVIDER"
	EnvStaticTokens       = "STOREFRONT_SECRETS_STATIC_TOKENS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
