package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string
		Password string
		DB       int
		TTL      time.Duration
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server        ServerConfig
		Database      DatabaseConfig
		Redis         RedisConfig
		Reimbursement ReimbursementSettings
		School        SchoolSettings
	}
)

// Address returns the host:port of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// CacheEnabled reports whether a redis address has been configured.
func (c RedisConfig) CacheEnabled() bool {
	return c.Address != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", true)
	v.SetDefault("appName", "RTE Reimbursement")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x2#k9!qv7$m0r@t4^e1w8&zb5)p3(n6*j_l")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "rte_reimbursement")
	v.SetDefault("database.user", "rte")
	v.SetDefault("database.password", "rte")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("reimbursement.approvalLevel", ApprovalDual)
	v.SetDefault("reimbursement.paymentApprover", "state")
	v.SetDefault("reimbursement.paymentHeads.enableStateHead", false)
	v.SetDefault("reimbursement.paymentHeads.stateClassList", []int{})

	v.SetDefault("school.centralMinClass", 3)
	v.SetDefault("school.centralLastClass", "8th")
	v.SetDefault("school.educationTypes", []string{"boys", "girls", "co-ed"})
	v.SetDefault("school.classLevels", defaultClassLevels())
}

func defaultClassLevels() []interface{} {
	labels := []string{"nursery", "kg1", "kg2", "1st", "2nd", "3rd", "4th", "5th", "6th", "7th", "8th", "9th", "10th", "11th", "12th"}
	levels := make([]interface{}, 0, len(labels))
	for key, label := range labels {
		levels = append(levels, map[string]interface{}{"key": key, "label": label})
	}
	return levels
}

// NewConfig reads the application settings from defaults, an optional `config/settings.yaml`,
// an optional `config/.env.<env>` and the environment (prefixed by the env name, e.g. PROD_DEBUG).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}

	wd := ProjectRoot()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(wd, "config"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config.ReadInConfig: %v", err)
		}
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf, err := configFromViper(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conf.Env = env
	conf.WorkDir = wd
	return conf
}

// NewTestConfig returns the default settings, in test mode, ignoring the environment.
func NewTestConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)

	conf, err := configFromViper(v)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	conf.Env = "TEST"
	return conf
}

func configFromViper(v *viper.Viper) (*Config, error) {
	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, fmt.Errorf("parsing defaultFromEmail: %v", err)
	}

	conf := &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: *fromEmail,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Reimbursement: ReimbursementSettings{
			ApprovalLevel:   v.GetString("reimbursement.approvalLevel"),
			PaymentApprover: v.GetString("reimbursement.paymentApprover"),
			PaymentHeads: PaymentHeads{
				EnableStateHead: v.GetBool("reimbursement.paymentHeads.enableStateHead"),
				StateClassList:  v.GetIntSlice("reimbursement.paymentHeads.stateClassList"),
			},
		},
		School: SchoolSettings{
			EducationTypes:   v.GetStringSlice("school.educationTypes"),
			CentralMinClass:  v.GetInt("school.centralMinClass"),
			CentralLastClass: v.GetString("school.centralLastClass"),
		},
	}
	if err := v.UnmarshalKey("school.classLevels", &conf.School.ClassLevels); err != nil {
		return nil, fmt.Errorf("decoding school.classLevels: %v", err)
	}
	return conf, nil
}

// ProjectRoot walks up from the working directory until it finds the directory holding go.mod.
// go test runs inside the package directory, so config files must be resolved from the module root.
// When no go.mod is found (deployed binary), the working directory is used.
func ProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
