package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "market",
		User:        "reader",
		Password:    "pw",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
		Readonly:    true,
	})
	assert.Equal(t, "clickhouse://reader:pw@ch:9000/market?dial_timeout=5s&max_execution_time=30&readonly=1", dsn)

	dsn = buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "market", User: "u", UseHTTP: true})
	assert.Equal(t, "clickhouse+http://u:@ch:8123/market", dsn)
}
