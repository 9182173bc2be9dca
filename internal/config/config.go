// Package config loads service configuration from the environment and owns
// the adjustable financial rates. Rates are mutable at runtime (operators can
// change them), but calculations never read them live: each calculation takes
// a RateSnapshot captured once at its start, so a concurrent rate change can
// not produce inconsistent results within one operation.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	envPrefix = "WEKEZA_"

	defaultInterestRate = "12.00" // annual %
	defaultTaxRate      = "15.00" // % withheld on interest
)

// Config is the process-wide configuration. HTTP/storage settings are fixed
// at startup; the rate fields are guarded by mu and snapshotted per
// calculation.
type Config struct {
	Addr        string
	PostgresDSN string
	KafkaBroker string
	KafkaTopic  string

	GatewayURL     string
	GatewayTimeout time.Duration

	mu                     sync.RWMutex
	defaultInterestRate    decimal.Decimal
	taxRate                decimal.Decimal
	rotationalModelEnabled bool
}

// RateSnapshot is an immutable copy of the financial rates in effect at a
// single point in time. Pass it through a whole calculation; never re-read.
type RateSnapshot struct {
	DefaultInterestRate    decimal.Decimal
	TaxRate                decimal.Decimal
	RotationalModelEnabled bool
	TakenAt                time.Time
}

// Load reads configuration from the environment. A .env file is honoured when
// present; real environment variables win over file values.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		Addr:           getenv("ADDR", ":8080"),
		PostgresDSN:    getenv("PG_DSN", ""),
		KafkaBroker:    getenv("KAFKA_BROKER", ""),
		KafkaTopic:     getenv("KAFKA_TOPIC", "wekeza.ledger.transactions"),
		GatewayURL:     getenv("GATEWAY_URL", ""),
		GatewayTimeout: getduration("GATEWAY_TIMEOUT", 30*time.Second),
	}
	c.defaultInterestRate = getdecimal("DEFAULT_INTEREST_RATE", defaultInterestRate)
	c.taxRate = getdecimal("TAX_RATE", defaultTaxRate)
	c.rotationalModelEnabled = getbool("ROTATIONAL_MODEL_ENABLED", true)
	return c
}

// Rates captures the current rates as an immutable snapshot.
func (c *Config) Rates() RateSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return RateSnapshot{
		DefaultInterestRate:    c.defaultInterestRate,
		TaxRate:                c.taxRate,
		RotationalModelEnabled: c.rotationalModelEnabled,
		TakenAt:                time.Now().UTC(),
	}
}

// SetRates updates the adjustable rates. In-flight calculations keep the
// snapshot they already took; frozen completion stats are never revisited.
func (c *Config) SetRates(interestRate, taxRate decimal.Decimal, rotationalEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultInterestRate = interestRate
	c.taxRate = taxRate
	c.rotationalModelEnabled = rotationalEnabled
}

func getenv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getdecimal(key, def string) decimal.Decimal {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.RequireFromString(def)
	}
	return d
}
