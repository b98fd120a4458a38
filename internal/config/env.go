package config

import (
	"github.com/kirill555101/paperclip/pkg/database"
	"github.com/kirill555101/paperclip/pkg/logging"
	"github.com/kirill555101/paperclip/pkg/middleware"
	"github.com/kirill555101/paperclip/pkg/openapi"
	"github.com/kirill555101/paperclip/pkg/pagination"
	"github.com/kirill555101/paperclip/pkg/storage"
)

var databaseEnv = &database.Env{
	Host:            "DATABASE_HOST",
	Port:            "DATABASE_PORT",
	Name:            "DATABASE_NAME",
	User:            "DATABASE_USER",
	Password:        "DATABASE_PASSWORD",
	SSLMode:         "DATABASE_SSL_MODE",
	MaxOpenConns:    "DATABASE_MAX_OPEN_CONNS",
	MaxIdleConns:    "DATABASE_MAX_IDLE_CONNS",
	ConnMaxLifetime: "DATABASE_CONN_MAX_LIFETIME",
	ConnTimeout:     "DATABASE_CONN_TIMEOUT",
}

var loggingEnv = &logging.Env{
	Level:  "LOGGING_LEVEL",
	Format: "LOGGING_FORMAT",
	Output: "LOGGING_OUTPUT",
}

var storageEnv = &storage.Env{
	Backend:         "STORAGE_BACKEND",
	BasePath:        "STORAGE_BASE_PATH",
	MaxUploadSize:   "STORAGE_MAX_UPLOAD_SIZE",
	RemoteEndpoint:  "STORAGE_REMOTE_ENDPOINT",
	RemoteBucket:    "STORAGE_REMOTE_BUCKET",
	RemoteAccessKey: "STORAGE_REMOTE_ACCESS_KEY",
	RemoteSecretKey: "STORAGE_REMOTE_SECRET_KEY",
	RemoteUseSSL:    "STORAGE_REMOTE_USE_SSL",
	CacheRedisAddr:  "STORAGE_CACHE_REDIS_ADDR",
}

var corsEnv = &middleware.CORSEnv{
	Enabled:          "CORS_ENABLED",
	Origins:          "CORS_ORIGINS",
	AllowedMethods:   "CORS_ALLOWED_METHODS",
	AllowedHeaders:   "CORS_ALLOWED_HEADERS",
	AllowCredentials: "CORS_ALLOW_CREDENTIALS",
	MaxAge:           "CORS_MAX_AGE",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "PAGINATION_MAX_PAGE_SIZE",
}

var openAPIEnv = &openapi.ConfigEnv{
	Title:       "OPENAPI_TITLE",
	Description: "OPENAPI_DESCRIPTION",
	ServerURL:   "OPENAPI_SERVER_URL",
}
