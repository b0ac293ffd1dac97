package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	AppLogger    *log.Logger
	EngineLogger *log.Logger
	ErrorLogger  *log.Logger

	logLevel      string
	appLogFile    *os.File
	engineLogFile *os.File
	initialized   bool
)

// InitGlobalLoggers sets up the application and capture-engine loggers.
// Errors always go to stderr; Info/Debug go to the log files when they can
// be opened and are discarded otherwise.
func InitGlobalLoggers(appLogPath, engineLogPath, level string) error {
	if initialized && appLogFile != nil && engineLogFile != nil && strings.ToUpper(level) == logLevel {
		return nil
	}
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if engineLogFile != nil {
		engineLogFile.Close()
		engineLogFile = nil
	}

	logLevel = strings.ToUpper(level)
	if logLevel == "" {
		logLevel = "INFO"
	}

	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	actualAppLogPath := appLogPath
	appLogDir := filepath.Dir(appLogPath)
	var appLogWriter io.Writer = io.Discard
	if err := os.MkdirAll(appLogDir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create app log directory %s: %v. App logs (Info/Debug) will be discarded.", appLogDir, err)
		actualAppLogPath = "(discarded)"
	} else {
		var errApp error
		appLogFile, errApp = os.OpenFile(appLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if errApp != nil {
			ErrorLogger.Printf("Failed to open app log file %s: %v. App logs (Info/Debug) will be discarded.", appLogPath, errApp)
			actualAppLogPath = "(discarded)"
		} else {
			appLogWriter = appLogFile
		}
	}
	AppLogger = log.New(appLogWriter, "APP: ", log.Ldate|log.Ltime|log.Lshortfile)

	actualEngineLogPath := engineLogPath
	engineLogDir := filepath.Dir(engineLogPath)
	var engineLogWriter io.Writer = io.Discard
	if err := os.MkdirAll(engineLogDir, 0750); err != nil {
		ErrorLogger.Printf("Failed to create engine log directory %s: %v. Engine logs (Info/Debug) will be discarded.", engineLogDir, err)
		actualEngineLogPath = "(discarded)"
	} else {
		var errEngine error
		engineLogFile, errEngine = os.OpenFile(engineLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if errEngine != nil {
			ErrorLogger.Printf("Failed to open engine log file %s: %v. Engine logs (Info/Debug) will be discarded.", engineLogPath, errEngine)
			actualEngineLogPath = "(discarded)"
		} else {
			engineLogWriter = engineLogFile
		}
	}
	EngineLogger = log.New(engineLogWriter, "ENGINE: ", log.Ldate|log.Ltime|log.Lshortfile)

	if !initialized {
		AppLogger.Printf("App logger initialized. Log level: %s. Output file: %s", logLevel, actualAppLogPath)
		EngineLogger.Printf("Engine logger initialized. Log level: %s. Output file: %s", logLevel, actualEngineLogPath)
	}
	initialized = true
	return nil
}

func Info(format string, v ...interface{}) {
	if AppLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		AppLogger.Printf(format, v...)
	}
}

func Debug(format string, v ...interface{}) {
	if AppLogger != nil && logLevel == "DEBUG" {
		AppLogger.Printf(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if AppLogger != nil && (logLevel == "WARN" || logLevel == "INFO" || logLevel == "DEBUG") {
		AppLogger.Printf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if AppLogger != nil && appLogFile != nil {
		AppLogger.Print(message)
	}
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Fatal(message)
	} else {
		log.Fatal(message)
	}
}

func EngineInfo(format string, v ...interface{}) {
	if EngineLogger != nil && (logLevel == "INFO" || logLevel == "DEBUG") {
		EngineLogger.Printf(format, v...)
	}
}

func EngineDebug(format string, v ...interface{}) {
	if EngineLogger != nil && logLevel == "DEBUG" {
		EngineLogger.Printf(format, v...)
	}
}

func EngineError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	if ErrorLogger != nil {
		ErrorLogger.Print(message)
	}
	if EngineLogger != nil && engineLogFile != nil {
		EngineLogger.Print(message)
	}
}

func CloseLogFiles() {
	if appLogFile != nil {
		AppLogger.Println("Closing app log file.")
		appLogFile.Close()
		appLogFile = nil
	}
	if engineLogFile != nil {
		EngineLogger.Println("Closing engine log file.")
		engineLogFile.Close()
		engineLogFile = nil
	}
	initialized = false
}
