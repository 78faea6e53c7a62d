package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsSerializationFailure(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to read/write dependencies among transactions"}
	assert.True(t, IsSerializationFailure(serialization))
	assert.True(t, IsSerializationFailure(fmt.Errorf("platform/db: commit tx: %w", serialization)))

	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsSerializationFailure(errors.New("connection refused")))
	assert.False(t, IsSerializationFailure(nil))
}
