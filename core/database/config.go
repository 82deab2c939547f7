package database

import (
	coreconfig "github.com/zoomigo/rentalbot/core/config"
)

// Config holds Postgres connection settings.
type Config = coreconfig.DatabaseConfig
