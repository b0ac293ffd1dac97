package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"netsentry/logger"

	"github.com/spf13/viper"
)

type DefaultPaths struct {
	ConfigDir     string
	LogPathApp    string
	LogPathEngine string
	DBPath        string
	LogLevel      string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Capture struct {
		AutoStopSeconds     int    `mapstructure:"auto_stop_seconds"`
		InterfaceName       string `mapstructure:"interface"`
		ProtocolFilter      string `mapstructure:"protocol_filter"`
		DeepInspection      bool   `mapstructure:"deep_inspection"`
		FeedIntervalSeconds int    `mapstructure:"feed_interval_seconds"`
		ProxyPort           string `mapstructure:"proxy_port"`
		LogPath             string `mapstructure:"log_path"`
	} `mapstructure:"capture"`
	Auth struct {
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"auth"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "netsentry")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathEngine = filepath.Join(logDir, "engine.log")
	paths.DBPath = filepath.Join(paths.ConfigDir, "netsentry.db")
	paths.LogLevel = "INFO"
	return paths
}

func Init(cfgFile string, flagAppLogPath, flagEngineLogPath, flagLogLevel string) error {
	v := viper.New()

	defaults := GetDefaultConfigPaths()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8689")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("capture.auto_stop_seconds", 30)
	v.SetDefault("capture.interface", "eth0")
	v.SetDefault("capture.protocol_filter", "http")
	v.SetDefault("capture.deep_inspection", true)
	v.SetDefault("capture.feed_interval_seconds", 3)
	v.SetDefault("capture.proxy_port", "")
	v.SetDefault("capture.log_path", defaults.LogPathEngine)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("logging.level", defaults.LogLevel)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("NETSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configUsedMsg := "Using default/environment configuration."
	readErr := v.ReadInConfig()
	if readErr == nil {
		configUsedMsg = fmt.Sprintf("Using config file: %s", v.ConfigFileUsed())
	} else {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); ok {
			if cfgFile != "" {
				fmt.Fprintf(os.Stderr, "Warning: Config file specified by flag (%s) not found: %v\n", cfgFile, readErr)
			} else {
				fmt.Fprintln(os.Stderr, "No default config file found. Using defaults/environment variables.")
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", v.ConfigFileUsed(), readErr)
		}
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Error unmarshalling configuration: %v\n", err)
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Apply flag overrides
	if flagAppLogPath != "" {
		expandedPath, err := expandTilde(flagAppLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --app-log path '%s': %v. Using original path.\n", flagAppLogPath, err)
			AppConfig.Server.LogPath = flagAppLogPath
		} else {
			AppConfig.Server.LogPath = expandedPath
		}
	}
	if flagEngineLogPath != "" {
		expandedPath, err := expandTilde(flagEngineLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --engine-log path '%s': %v. Using original path.\n", flagEngineLogPath, err)
			AppConfig.Capture.LogPath = flagEngineLogPath
		} else {
			AppConfig.Capture.LogPath = expandedPath
		}
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	var err error
	AppConfig.Database.Path, err = expandTilde(AppConfig.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in database.path '%s': %v.\n", AppConfig.Database.Path, err)
	}

	if AppConfig.Capture.AutoStopSeconds <= 0 {
		fmt.Fprintf(os.Stderr, "Warning: capture.auto_stop_seconds must be positive, falling back to 30.\n")
		AppConfig.Capture.AutoStopSeconds = 30
	}
	if AppConfig.Capture.FeedIntervalSeconds <= 0 {
		AppConfig.Capture.FeedIntervalSeconds = 3
	}

	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(AppConfig.Server.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final app log directory %s: %v\n", filepath.Dir(AppConfig.Server.LogPath), err)
	}
	if err := os.MkdirAll(filepath.Dir(AppConfig.Capture.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final engine log directory %s: %v\n", filepath.Dir(AppConfig.Capture.LogPath), err)
	}
	if err := os.MkdirAll(defaults.ConfigDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create main config directory %s: %v\n", defaults.ConfigDir, err)
	}

	// Initialize/Re-initialize loggers
	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Capture.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	logger.Info(configUsedMsg)
	if readErr != nil && cfgFile != "" {
		logger.Error("Error occurred reading specified config file '%s': %v", cfgFile, readErr)
	}
	if flagAppLogPath != "" || flagEngineLogPath != "" || flagLogLevel != "" {
		logger.Info("Log path/level flags may have overridden config file/defaults.")
	}

	if AppConfig.Auth.Password == "" {
		logger.Warn("auth.password is not configured. Login is disabled; sessions will be attributed to '%s'.", "anonymous")
	}
	if AppConfig.Capture.ProxyPort != "" {
		logger.Info("Live proxy feed enabled on port %s.", AppConfig.Capture.ProxyPort)
	}

	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
