package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Domenick1991/charterbooking/config"
)

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"}, time.Minute)
	assert.NotNil(t, c)
	assert.NotNil(t, c.Client())
	assert.Equal(t, time.Minute, c.reportTTL)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:migration:report:bookings", reportKey("bookings"))
	assert.Equal(t, "lock:transition:quotes:QT-1", lockKey("quotes:QT-1"))
}

func TestNewMigrationMutex(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"}, time.Minute)
	m := NewMigrationMutex(c.Client(), 10*time.Minute)
	assert.NotNil(t, m)
	assert.Equal(t, 10*time.Minute, m.expiry)
}
