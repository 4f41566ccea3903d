package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/maap-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "maap", Password: "p@ss word", Name: "maap"})
	assert.Equal(t, "postgres://maap:p%40ss%20word@db:5432/maap?sslmode=disable", dsn)

	dsn = DSN(config.DatabaseConfig{Host: "db", Port: 6543, User: "u", Password: "p", Name: "x", SSLMode: "require"})
	assert.Equal(t, "postgres://u:p@db:6543/x?sslmode=require", dsn)
}
