// config/defaults.go default values for settings
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaults() {
	viper.SetDefault("enabled", true)
	viper.SetDefault("level", "info")
	viper.SetDefault("buffersize", 100)
	viper.SetDefault("flushinterval", 30*time.Second)
	viper.SetDefault("evalinterval", 5*time.Second)
	viper.SetDefault("dedupwindow", 5*time.Minute)

	viper.SetDefault("console.enabled", true)

	viper.SetDefault("remote.enabled", true)
	viper.SetDefault("remote.logsurl", "http://localhost:8090/api/logs")
	viper.SetDefault("remote.alertsurl", "http://localhost:8090/api/monitoring/alerts")
	viper.SetDefault("remote.eventsurl", "http://localhost:8090/api/monitoring/logs")

	viper.SetDefault("localstore.enabled", true)
	viper.SetDefault("localstore.path", "telemetry-store")

	viper.SetDefault("retention.logdays", 7)
	viper.SetDefault("retention.alertdays", 30)

	viper.SetDefault("thresholds", map[string]float64{
		"pageLoadTime":    3000,
		"errorRate":       5,
		"apiResponseTime": 2000,
		"memoryUsage":     80,
		"cpuUsage":        90,
	})

	viper.SetDefault("sensitivefields", []string{
		"password", "token", "secret", "key", "authorization", "ssn", "credit_card",
	})

	viper.SetDefault("probe.enabled", false)
	viper.SetDefault("probe.interval", 10*time.Second)

	viper.SetDefault("log.enabled", true)
	viper.SetDefault("log.path", "telemetryd.log")
	viper.SetDefault("log.maxsize", 100)
}
