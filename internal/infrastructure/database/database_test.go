package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskmaster/scheduler/internal/infrastructure/config"
)

func TestOpen_Unreachable(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{
		Host:    "127.0.0.1",
		Port:    1,
		Name:    "scheduler",
		User:    "postgres",
		SSLMode: "disable",
	})

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "connect to postgres at 127.0.0.1:1")
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, config.DatabaseConfig{Host: "127.0.0.1", Port: 5432, SSLMode: "disable"})
	assert.Error(t, err)
}
