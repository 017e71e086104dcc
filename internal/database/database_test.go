package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:x.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "file:x.db?_fk=1&_busy_timeout=10", sqliteDSN("file:x.db?_fk=1&_busy_timeout=10"))
}

func TestSelectDialect(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := selectDialect(driver)
		assert.NoError(t, err)
		assert.NotNil(t, d)
	}

	_, err := selectDialect("oracle")
	assert.Error(t, err)
}
