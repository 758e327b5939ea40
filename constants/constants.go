// Package constants vends constants used in various components of healx service, e.g., env var names
package constants

import "time"

const (
	// -------------- env vars --------------
	// common
	EnvVerbose = "HEALX_VERBOSE"
	// payload cipher
	EnvSecretKey = "HEALX_SECRET_KEY"
	// stores
	EnvCouchAddr           = "COUCHDB_ADDR"
	EnvCouchUser           = "COUCHDB_USER"
	EnvCouchPasswd         = "COUCHDB_PASSWD"
	EnvCouchRecordsDB      = "COUCHDB_RECORDS_DB"
	EnvCouchRequestTimeout = "COUCHDB_REQUEST_TIMEOUT"
	EnvRedisHost           = "REDIS_HOST"
	EnvRedisPort           = "REDIS_PORT"
	EnvRedisPasswd         = "REDIS_PASSWD"
	EnvRedisDB             = "REDIS_DB"
	// server
	EnvAppHost              = "HEALX_HOST"
	EnvAppPort              = "HEALX_PORT"
	EnvSessionKey           = "HEALX_SESSION_KEY"
	EnvSessionMaxAge        = "HEALX_SESSION_MAX_AGE"
	EnvUploadSizeMaxByte    = "HEALX_UPLOAD_SIZE_MAX_BYTE"
	EnvShareFetcherPoolSize = "HEALX_SHARE_FETCHER_POOL_SIZE"
	EnvShareCacheSize       = "HEALX_SHARE_CACHE_SIZE"
	EnvShareRetention       = "HEALX_SHARE_RETENTION"

	// -------------- defaults --------------
	DefaultAppPort              = "8080"
	DefaultCouchRecordsDB       = "records"
	DefaultCouchRequestTimeout  = 10 * time.Second
	DefaultRedisPort            = "6379"
	DefaultSessionMaxAge        = 7 * 24 * time.Hour
	DefaultUploadSizeMaxByte    = 10 << 20
	DefaultShareFetcherPoolSize = 4
	DefaultShareCacheSize       = 1024
	DefaultShareRetention       = 24 * time.Hour

	// -------------- domain --------------
	// PatientSelf is the patient label of records owned by the user themselves
	PatientSelf = "Self"
	// PatientAll selects every patient partition in record listings
	PatientAll = "all"

	// -------------- http --------------
	SessionCookieName = "healx_session"
	SessionKeyUserID  = "userID"
	SessionKeyEmail   = "email"

	// -------------- error messages --------------
	ErrMsgRequestBodyTooLarge = "request body too large"

	// -------------- log fields --------------
	LogFieldFuncName = "funcName"
)
