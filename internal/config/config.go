package config

import "os"

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Postgres PostgresConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type AuthConfig struct {
	JWTSecret        string
	JWTAccessTTL     string
	RefreshTokenDays string
	CookieSecure     string
	CookieDomain     string
	CookiePath       string
	Env              string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type CORSConfig struct {
	AllowedOrigins string
}

func Load() Config {
	env := getenv("APP_ENV", "development")

	return Config{
		Server: ServerConfig{
			Port: getenv("PORT", "4000"),
			Env:  env,
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			JWTAccessTTL:     getenv("JWT_ACCESS_TTL", "15m"),
			RefreshTokenDays: getenv("REFRESH_TOKEN_DAYS", "7"),
			CookieSecure:     os.Getenv("AUTH_COOKIE_SECURE"),
			CookieDomain:     os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookiePath:       os.Getenv("AUTH_COOKIE_PATH"),
			Env:              env,
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		CORS: CORSConfig{
			AllowedOrigins: os.Getenv("CORS_ORIGINS"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
