package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckAll(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := &RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	defer rc.Close()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	pg := &PostgresClient{DB: db}

	failures := CheckAll(context.Background(), 100*time.Millisecond, map[string]Pinger{
		"redis":    rc,
		"postgres": pg,
		"slow": pingFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	})

	assert.Equal(t, []string{"postgres", "slow"}, Names(failures))
	assert.ErrorIs(t, failures["slow"], context.DeadlineExceeded)
}

func TestRedisClient_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := &RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	defer rc.Close()
	mr.Close()

	assert.Error(t, rc.Ping(context.Background()))
}
