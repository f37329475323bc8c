package repository

// Timestamps are unix milliseconds in both dialects.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS bots (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    secret TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    signal_mode TEXT NOT NULL,
    status TEXT NOT NULL,
    default_quantity TEXT,
    indicators TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
    id TEXT PRIMARY KEY,
    bot_id TEXT NOT NULL REFERENCES bots(id),
    dedup_key TEXT,
    payload TEXT NOT NULL,
    status TEXT NOT NULL,
    is_test INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    outcome TEXT,
    reason TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    started_at INTEGER,
    finished_at INTEGER
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_events_bot_dedup ON webhook_events(bot_id, dedup_key)`,
	`CREATE INDEX IF NOT EXISTS idx_events_bot_created ON webhook_events(bot_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_status ON webhook_events(status)`,
	`CREATE TABLE IF NOT EXISTS trade_intents (
    id TEXT PRIMARY KEY,
    bot_id TEXT NOT NULL REFERENCES bots(id),
    event_id TEXT NOT NULL UNIQUE REFERENCES webhook_events(id),
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity TEXT,
    price TEXT,
    stop_loss TEXT,
    take_profit TEXT,
    status TEXT NOT NULL,
    order_ref TEXT NOT NULL DEFAULT '',
    is_test INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS bots (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    owner_id VARCHAR(64) NOT NULL,
    secret VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    symbol VARCHAR(64) NOT NULL,
    timeframe VARCHAR(16) NOT NULL,
    signal_mode VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    default_quantity VARCHAR(64) NULL,
    indicators MEDIUMTEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
    id CHAR(36) NOT NULL PRIMARY KEY,
    bot_id VARCHAR(64) NOT NULL,
    dedup_key VARCHAR(128) NULL,
    payload MEDIUMTEXT NOT NULL,
    status VARCHAR(16) NOT NULL,
    is_test TINYINT(1) NOT NULL DEFAULT 0,
    attempts INT NOT NULL DEFAULT 0,
    outcome MEDIUMTEXT NULL,
    reason TEXT NOT NULL,
    error TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    started_at BIGINT NULL,
    finished_at BIGINT NULL,
    UNIQUE KEY ux_events_bot_dedup (bot_id, dedup_key),
    KEY idx_events_bot_created (bot_id, created_at),
    KEY idx_events_status (status),
    CONSTRAINT fk_events_bot FOREIGN KEY (bot_id) REFERENCES bots(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS trade_intents (
    id CHAR(36) NOT NULL PRIMARY KEY,
    bot_id VARCHAR(64) NOT NULL,
    event_id CHAR(36) NOT NULL,
    symbol VARCHAR(64) NOT NULL,
    side VARCHAR(8) NOT NULL,
    quantity VARCHAR(64) NULL,
    price VARCHAR(64) NULL,
    stop_loss VARCHAR(64) NULL,
    take_profit VARCHAR(64) NULL,
    status VARCHAR(16) NOT NULL,
    order_ref VARCHAR(255) NOT NULL DEFAULT '',
    is_test TINYINT(1) NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE KEY ux_intents_event (event_id),
    CONSTRAINT fk_intents_event FOREIGN KEY (event_id) REFERENCES webhook_events(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
