package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config holds the application's configuration values.
type Config struct {
	AppName string `json:"appname"`
	AppEnv  string `json:"appenv"`
	AppPort uint16 `json:"appport"`
	GinMode string `json:"ginmode"`
	DBHost  string `json:"dbhost"`
	DBPort  uint16 `json:"dbport"`
	DBName  string `json:"dbname"`
	DBUser  string `json:"dbuser"`
	DBPass  string `json:"dbpass"`

	// OTPTTLMinutes controls how long an emailed verification code stays valid.
	OTPTTLMinutes int `json:"otp_ttl_minutes"`

	// DocumentDir is where generated consultation documents are written.
	DocumentDir string `json:"document_dir"`

	SMTPHost string `json:"smtp_host"`
	SMTPPort uint16 `json:"smtp_port"`
	SMTPUser string `json:"smtp_user"`
	SMTPPass string `json:"smtp_pass"`
	SMTPFrom string `json:"smtp_from"`
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file, and returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		// Load environment variables from a .env file. A missing file is fine;
		// tests and containers set the environment directly.
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}

		appPort, _ := strconv.ParseUint(os.Getenv("APPPORT"), 10, 16)
		dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)
		smtpPort, _ := strconv.ParseUint(os.Getenv("SMTPPORT"), 10, 16)

		otpTTL, err := strconv.Atoi(os.Getenv("OTP_TTL_MINUTES"))
		if err != nil || otpTTL <= 0 {
			otpTTL = 10
		}

		docDir := os.Getenv("DOCUMENT_DIR")
		if docDir == "" {
			docDir = "generated_documents"
		}

		// Initialize the Config struct with values from environment variables.
		config = &Config{
			AppName:       os.Getenv("APPNAME"),
			AppEnv:        os.Getenv("APPENV"),
			AppPort:       uint16(appPort),
			GinMode:       os.Getenv("GINMODE"),
			DBHost:        os.Getenv("DBHOST"),
			DBPort:        uint16(dbPort),
			DBName:        os.Getenv("DBNAME"),
			DBUser:        os.Getenv("DBUSER"),
			DBPass:        os.Getenv("DBPASS"),
			OTPTTLMinutes: otpTTL,
			DocumentDir:   docDir,
			SMTPHost:      os.Getenv("SMTPHOST"),
			SMTPPort:      uint16(smtpPort),
			SMTPUser:      os.Getenv("SMTPUSER"),
			SMTPPass:      os.Getenv("SMTPPASS"),
			SMTPFrom:      os.Getenv("SMTPFROM"),
		}
	})
	return config
}

// ResetConfigForTest clears the cached singleton so tests can reload a fresh
// configuration from their own environment.
func ResetConfigForTest() {
	config = nil
	once = sync.Once{}
}

// ConnectDB establishes the database connection using the configuration values.
// When APPENV is "test" an in-memory SQLite database is opened instead of
// MySQL so tests never depend on a running server.
func ConnectDB() (*gorm.DB, error) {
	cfg := LoadConfig()

	if cfg.AppEnv == "test" || os.Getenv("APPENV") == "test" {
		return gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	}

	// Build the Data Source Name (DSN) using the configuration values.
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}
