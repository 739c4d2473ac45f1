package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andresuchdata/salesboard/backend-go/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5433",
		User:     "sales",
		Password: "secret",
		DBName:   "salesboard",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=sales password=secret dbname=salesboard sslmode=disable", dsn)
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range Schema {
		assert.True(t, strings.HasPrefix(strings.TrimSpace(stmt), "CREATE TABLE IF NOT EXISTS"))
	}
}

func TestHolidaysOf_EmptyMonthIsNotNil(t *testing.T) {
	days := map[string][]int{"2024-05": {1, 20}}

	assert.Equal(t, []int{1, 20}, holidaysOf(days, "2024-05"))

	empty := holidaysOf(days, "2024-06")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
	assert.NotNil(t, holidaysOf(nil, "2024-06"))
}
