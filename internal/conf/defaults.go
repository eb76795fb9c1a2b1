package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers a default for every key so that environment
// overrides resolve during Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "syncbridge")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "logs/syncbridge.log")
	v.SetDefault("log.file.maxsize", 100)
	v.SetDefault("log.file.maxbackups", 5)
	v.SetDefault("log.file.maxage", 30)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "syncbridge.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "syncbridge")
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.visibilitytimeout", 2*time.Minute)
	v.SetDefault("queue.maxdeliveries", 5)
	v.SetDefault("queue.receivebatch", 1)
	v.SetDefault("queue.pollinterval", 250*time.Millisecond)

	v.SetDefault("engine.workers", 8)
	v.SetDefault("engine.pagesize", 1000)
	v.SetDefault("engine.estimatepagesize", 1)
	v.SetDefault("engine.completionthreshold", 10)
	v.SetDefault("engine.busydelay", 10*time.Second)
	v.SetDefault("engine.quietdelay", 1*time.Second)
	v.SetDefault("engine.retrybasedelay", 1*time.Second)
	v.SetDefault("engine.retrymaxdelay", time.Minute)

	v.SetDefault("mappingstore.backend", "database")
	v.SetDefault("mappingstore.url", "")
	v.SetDefault("mappingstore.token", "")
	v.SetDefault("mappingstore.cachettl", 10*time.Minute)

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.ratelimit", 50.0)
	v.SetDefault("http.burst", 10)
	v.SetDefault("http.retrycount", 2)
	v.SetDefault("http.breaker.maxrequests", 1)
	v.SetDefault("http.breaker.interval", time.Minute)
	v.SetDefault("http.breaker.timeout", 30*time.Second)
	v.SetDefault("http.breaker.failurethreshold", 5)

	v.SetDefault("sync.selforigin", "syncbridge")
	v.SetDefault("sync.mqtt.enabled", false)
	v.SetDefault("sync.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("sync.mqtt.clientid", "")
	v.SetDefault("sync.mqtt.username", "")
	v.SetDefault("sync.mqtt.password", "")
	v.SetDefault("sync.mqtt.qos", 1)
	v.SetDefault("sync.kafka.enabled", false)
	v.SetDefault("sync.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("sync.kafka.groupid", "syncbridge")

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.url", "http://localhost:8080")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
