package config

const (
	// EnvPrefix namespaces every environment variable the platform reads.
	EnvPrefix = "fundilink"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "FUNDILINK_APP_ENV"
	EnvDBDSN  = "FUNDILINK_DB_DSN"
	EnvDBHost = "FUNDILINK_DB_HOST"
	EnvDBUser = "FUNDILINK_DB_USER"
	EnvDBName = "FUNDILINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
