package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/cppla/rewardledger/models"
	"github.com/cppla/rewardledger/rewards"
)

// AppConfig holds the service configuration.
// Secrets have no defaults and must come from the config file or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// bcrypt hash of the key platform services send in X-Service-Key
	ServiceKeyHash string
	// Reward rules
	RewardDailyCap                  int
	RewardAmounts                   map[string]int
	RewardDefaultAmount             int
	RewardXPPerCoin                 int
	RewardMilestones                []int
	RewardMilestoneBonus            int
	RewardReferralLifetime          bool
	RewardMilestonesOncePerLifetime bool
	RewardTimezone                  string
	AuditIntervalMinutes            int
}

var cfg AppConfig
var loaded bool

// legacyEnv lists environment names accepted in addition to the
// automatic GROUP_KEY form (app.port -> APP_PORT).
var legacyEnv = map[string][]string{
	"app.jwt_secret":            {"JWT_SECRET"},
	"app.rate_limit_per_minute": {"RATE_LIMIT_PER_MINUTE"},
	"app.allowed_origins":       {"CORS_ALLOWED_ORIGINS"},
	"gin.mode":                  {"GIN_MODE"},
	"gin.path":                  {"GIN_PATH", "GIN_LOG_PATH"},
	"database.uri":              {"DATABASE_URI"},
	"database.driver":           {"DB_DRIVER"},
	"database.host":             {"DB_HOST"},
	"database.port":             {"DB_PORT"},
	"database.user":             {"DB_USER"},
	"database.password":         {"DB_PASSWORD"},
	"database.name":             {"DB_NAME"},
	"service.key_hash":          {"SERVICE_KEY_HASH"},
}

// Load reads configuration once during boot.
// Precedence: defaults -> config/config.json -> .env -> environment variables.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("invalid config file: %v", err)
		}
	}

	c, err := fromViper(v)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in config or environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Override replaces the cached configuration. Tests use it to avoid touching disk.
func Override(c AppConfig) {
	cfg = c
	loaded = true
}

// Defaults returns the configuration produced when nothing is set.
func Defaults() AppConfig {
	c, _ := fromViper(newViper())
	return c
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		_ = v.BindEnv(append([]string{key, envName(key)}, names...)...)
	}
	return v
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers sane defaults for every non-secret key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.rate_limit_per_minute", 60)
	v.SetDefault("app.allowed_origins", []string{"*"})
	v.SetDefault("gin.mode", "release")
	v.SetDefault("gin.path", "logs/go_gin.log")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "rewards")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	def := rewards.DefaultRules()
	amounts := map[string]interface{}{}
	for action, amount := range def.Amounts {
		amounts[string(action)] = amount
	}
	v.SetDefault("rewards.daily_cap", def.DailyCoinCap)
	v.SetDefault("rewards.amounts", amounts)
	v.SetDefault("rewards.default_amount", def.DefaultAmount)
	v.SetDefault("rewards.xp_per_coin", def.XPPerCoin)
	v.SetDefault("rewards.milestones", def.StreakMilestones)
	v.SetDefault("rewards.milestone_bonus", def.MilestoneBonus)
	v.SetDefault("rewards.referral_lifetime_dedup", true)
	v.SetDefault("rewards.milestones_once_per_lifetime", false)
	v.SetDefault("rewards.timezone", "Local")
	v.SetDefault("rewards.audit_interval_minutes", 24*60)
}

func fromViper(v *viper.Viper) (AppConfig, error) {
	c := AppConfig{
		AppPort:            v.GetString("app.port"),
		JWTSecret:          v.GetString("app.jwt_secret"),
		RateLimitPerMinute: v.GetInt("app.rate_limit_per_minute"),
		AllowedOrigins:     readList(v, "app.allowed_origins"),
		GinMode:            v.GetString("gin.mode"),
		GinPath:            v.GetString("gin.path"),

		DBDriver:    strings.ToLower(v.GetString("database.driver")),
		DatabaseURI: v.GetString("database.uri"),
		DBHost:      v.GetString("database.host"),
		DBPort:      v.GetString("database.port"),
		DBUser:      v.GetString("database.user"),
		DBPassword:  v.GetString("database.password"),
		DBName:      v.GetString("database.name"),

		RedisEnabled:  v.GetBool("redis.enabled"),
		RedisHost:     v.GetString("redis.host"),
		RedisPort:     v.GetInt("redis.port"),
		RedisDB:       v.GetInt("redis.db"),
		RedisPassword: v.GetString("redis.password"),

		LogLevel:      v.GetString("log.level"),
		LogPath:       v.GetString("log.path"),
		LogMaxSizeMB:  v.GetInt("log.max_size_mb"),
		LogMaxBackups: v.GetInt("log.max_backups"),
		LogMaxAgeDays: v.GetInt("log.max_age_days"),
		LogCompress:   v.GetBool("log.compress"),

		ServiceKeyHash: v.GetString("service.key_hash"),

		RewardDailyCap:                  v.GetInt("rewards.daily_cap"),
		RewardDefaultAmount:             v.GetInt("rewards.default_amount"),
		RewardXPPerCoin:                 v.GetInt("rewards.xp_per_coin"),
		RewardMilestoneBonus:            v.GetInt("rewards.milestone_bonus"),
		RewardReferralLifetime:          v.GetBool("rewards.referral_lifetime_dedup"),
		RewardMilestonesOncePerLifetime: v.GetBool("rewards.milestones_once_per_lifetime"),
		RewardTimezone:                  v.GetString("rewards.timezone"),
		AuditIntervalMinutes:            v.GetInt("rewards.audit_interval_minutes"),
	}

	amounts, err := readIntMap(v, "rewards.amounts")
	if err != nil {
		return c, err
	}
	c.RewardAmounts = amounts
	milestones, err := readIntList(v, "rewards.milestones")
	if err != nil {
		return c, err
	}
	c.RewardMilestones = milestones

	if c.DBDriver != "mysql" && c.DBDriver != "postgres" {
		return c, fmt.Errorf("database.driver must be mysql or postgres, got %q", c.DBDriver)
	}
	if c.DBPort == "" {
		c.DBPort = map[string]string{"mysql": "3306", "postgres": "5432"}[c.DBDriver]
	}
	if _, err := c.Location(); err != nil {
		return c, err
	}
	if _, err := c.RewardRules(); err != nil {
		return c, err
	}
	return c, nil
}

// Location resolves the zone in which reward days begin and end.
func (c AppConfig) Location() (*time.Location, error) {
	switch c.RewardTimezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.RewardTimezone)
		if err != nil {
			return nil, fmt.Errorf("rewards.timezone: %w", err)
		}
		return loc, nil
	}
}

// RewardRules converts the reward section into ledger rules.
func (c AppConfig) RewardRules() (rewards.Rules, error) {
	r := rewards.DefaultRules()
	if c.RewardDailyCap != 0 {
		r.DailyCoinCap = c.RewardDailyCap
	}
	for name, amount := range c.RewardAmounts {
		r.Amounts[models.ActionType(name)] = amount
	}
	if c.RewardDefaultAmount != 0 {
		r.DefaultAmount = c.RewardDefaultAmount
	}
	if c.RewardXPPerCoin != 0 {
		r.XPPerCoin = c.RewardXPPerCoin
	}
	if c.RewardMilestones != nil {
		r.StreakMilestones = c.RewardMilestones
	}
	if c.RewardMilestoneBonus != 0 {
		r.MilestoneBonus = c.RewardMilestoneBonus
	}
	r.LifetimeDedup[models.ActionReferral] = c.RewardReferralLifetime
	r.MilestonesOncePerLifetime = c.RewardMilestonesOncePerLifetime
	return r, r.Validate()
}

// AuditInterval is how often the ledger reconciliation job runs. Zero disables it.
func (c AppConfig) AuditInterval() time.Duration {
	if c.AuditIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.AuditIntervalMinutes) * time.Minute
}

// readList accepts a JSON array or a comma separated string from the environment.
func readList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitAndTrim(raw)
	}
	return v.GetStringSlice(key)
}

func readIntList(v *viper.Viper, key string) ([]int, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		items := splitAndTrim(s)
		out := make([]int, 0, len(items))
		for _, it := range items {
			n, err := cast.ToIntE(it)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, n)
		}
		return out, nil
	}
	out, err := cast.ToIntSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}

func readIntMap(v *viper.Viper, key string) (map[string]int, error) {
	out := map[string]int{}
	for name, raw := range v.GetStringMap(key) {
		n, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", key, name, err)
		}
		out[name] = n
	}
	return out, nil
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
