package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig

	Store      StoreConfig
	Billing    BillingConfig
	Attendance AttendanceConfig
	Statuses   StatusConfig
	Salary     SalaryConfig
	Jobs       JobsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig carries the document-store limits. Different stores impose
// different caps, so neither value is hard-coded anywhere else.
type StoreConfig struct {
	Driver     string
	BatchLimit int
	InLimit    int
}

// BillingConfig carries the monetary rates used by the debt machines and
// the salary engine.
type BillingConfig struct {
	SessionRate      int64
	TeachingRate     int64
	WorkDaysPerMonth int
}

// AttendanceConfig holds the presence-equivalent status sets for the two
// attendance record shapes. They are configured independently; the batch
// shape historically counts made-up sessions as presence, the per-student
// shape does not.
type AttendanceConfig struct {
	PresentStatuses        []string
	StudentPresentStatuses []string
	HolidayStatus          string
}

// StatusConfig maps legacy student status spellings onto canonical ones
// before roster bucketing.
type StatusConfig struct {
	Aliases map[string]string
}

// PositionRate describes the salary profile of one staff position.
type PositionRate struct {
	Multiplier        float64
	HasKPIBonus       bool
	HasCommission     bool
	DefaultBaseSalary int64
}

// SalaryConfig carries the position table injected into the salary engine.
// Unknown positions fall back to Default.
type SalaryConfig struct {
	Positions map[string]PositionRate
	Default   PositionRate
}

// JobsConfig toggles and schedules the background jobs.
type JobsConfig struct {
	DailyRecomputeEnabled  bool
	DailyRecomputeInterval time.Duration
	MonthlySalaryEnabled   bool
	MonthlySalaryInterval  time.Duration
	DispatchWorkers        int
	DispatchBuffer         int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Store = StoreConfig{
		Driver:     v.GetString("STORE_DRIVER"),
		BatchLimit: v.GetInt("STORE_BATCH_LIMIT"),
		InLimit:    v.GetInt("STORE_IN_LIMIT"),
	}

	cfg.Billing = BillingConfig{
		SessionRate:      v.GetInt64("BILLING_SESSION_RATE"),
		TeachingRate:     v.GetInt64("BILLING_TEACHING_SESSION_RATE"),
		WorkDaysPerMonth: v.GetInt("BILLING_WORK_DAYS_PER_MONTH"),
	}

	cfg.Attendance = AttendanceConfig{
		PresentStatuses:        splitAndTrim(v.GetString("ATTENDANCE_PRESENT_STATUSES")),
		StudentPresentStatuses: splitAndTrim(v.GetString("STUDENT_ATTENDANCE_PRESENT_STATUSES")),
		HolidayStatus:          v.GetString("ATTENDANCE_HOLIDAY_STATUS"),
	}

	cfg.Statuses = StatusConfig{Aliases: pairMap(v.GetString("STUDENT_STATUS_ALIASES"))}

	cfg.Salary = SalaryConfig{
		Positions: defaultPositionTable(),
		Default: PositionRate{
			Multiplier:        1.0,
			DefaultBaseSalary: v.GetInt64("SALARY_DEFAULT_BASE"),
		},
	}

	cfg.Jobs = JobsConfig{
		DailyRecomputeEnabled:  v.GetBool("ENABLE_DAILY_RECOMPUTE"),
		DailyRecomputeInterval: parseDuration(v.GetString("DAILY_RECOMPUTE_INTERVAL"), 24*time.Hour),
		MonthlySalaryEnabled:   v.GetBool("ENABLE_MONTHLY_SALARY"),
		MonthlySalaryInterval:  parseDuration(v.GetString("MONTHLY_SALARY_INTERVAL"), 24*time.Hour),
		DispatchWorkers:        v.GetInt("DISPATCH_WORKERS"),
		DispatchBuffer:         v.GetInt("DISPATCH_BUFFER"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "center_ops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("STORE_BATCH_LIMIT", 500)
	v.SetDefault("STORE_IN_LIMIT", 10)

	v.SetDefault("BILLING_SESSION_RATE", 150000)
	v.SetDefault("BILLING_TEACHING_SESSION_RATE", 120000)
	v.SetDefault("BILLING_WORK_DAYS_PER_MONTH", 22)

	v.SetDefault("ATTENDANCE_PRESENT_STATUSES", "present,late,makeup")
	v.SetDefault("STUDENT_ATTENDANCE_PRESENT_STATUSES", "present,late")
	v.SetDefault("ATTENDANCE_HOLIDAY_STATUS", "holiday")

	v.SetDefault("STUDENT_STATUS_ALIASES", "studying=active,hoc_thu=trial,no_phi=fee-debt,bao_luu=reserved")

	v.SetDefault("SALARY_DEFAULT_BASE", 5000000)

	v.SetDefault("ENABLE_DAILY_RECOMPUTE", false)
	v.SetDefault("DAILY_RECOMPUTE_INTERVAL", "24h")
	v.SetDefault("ENABLE_MONTHLY_SALARY", false)
	v.SetDefault("MONTHLY_SALARY_INTERVAL", "24h")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_BUFFER", 64)
}

func defaultPositionTable() map[string]PositionRate {
	return map[string]PositionRate{
		"teacher":         {Multiplier: 1.0, DefaultBaseSalary: 6000000},
		"foreign_teacher": {Multiplier: 1.3, DefaultBaseSalary: 12000000},
		"assistant":       {Multiplier: 1.0, DefaultBaseSalary: 4000000},
		"receptionist":    {Multiplier: 1.0, DefaultBaseSalary: 5000000},
		"consultant":      {Multiplier: 1.1, HasCommission: true, DefaultBaseSalary: 5000000},
		"branch_manager":  {Multiplier: 1.5, HasKPIBonus: true, DefaultBaseSalary: 9000000},
		"accountant":      {Multiplier: 1.1, DefaultBaseSalary: 6000000},
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// pairMap parses "legacy=canonical" declarations separated by commas.
func pairMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if k != "" && val != "" {
			out[k] = val
		}
	}
	return out
}
