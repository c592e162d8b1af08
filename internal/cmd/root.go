package cmd

import (
	"bytes"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/CompassSecurity/groovyleek/internal/cmd/docs"
	"github.com/CompassSecurity/groovyleek/internal/cmd/jenkins"
	"github.com/CompassSecurity/groovyleek/pkg/config"
	"github.com/CompassSecurity/groovyleek/pkg/format"
	"github.com/CompassSecurity/groovyleek/pkg/httpclient"
	"github.com/CompassSecurity/groovyleek/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version information - set via ldflags during build
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	rootCmd = &cobra.Command{
		Use:     "groovyleek",
		Short:   "Execute commands through exposed Jenkins script consoles",
		Long:    "Groovyleek runs operating system commands on Jenkins instances whose Groovy script console is reachable without authentication.",
		Example: "groovyleek jk exec --jenkins http://10.0.0.5:8080 --command id",
		Version: getVersion(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfigFile(cmd)
			initLogger(cmd)
			setGlobalLogLevel(cmd)
			httpclient.SetIgnoreProxy(IgnoreProxy)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			CloseLogger()
		},
	}
	JsonLogoutput bool
	LogFile       string
	LogColor      bool
	LogDebug      bool
	LogLevel      string
	IgnoreProxy   bool
	ConfigFile    string

	logFileHandle *os.File
	logFileMu     sync.Mutex
)

func Execute() error {
	return rootCmd.Execute()
}

func getVersion() string {
	return Version
}

func init() {
	rootCmd.AddCommand(jenkins.NewJenkinsRootCmd())
	rootCmd.AddCommand(docs.NewDocsCmd(rootCmd))
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", "", "Config file path (YAML, JSON, or TOML). Example: ~/.config/groovyleek/groovyleek.yaml")
	rootCmd.PersistentFlags().BoolVarP(&JsonLogoutput, "json", "", false, "Use JSON as log output format")
	rootCmd.PersistentFlags().StringVarP(&LogFile, "logfile", "l", "", "Log output to a file")
	rootCmd.PersistentFlags().BoolVarP(&LogDebug, "verbose", "v", false, "Enable debug logging (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Set log level globally (trace, debug, info, warn, error). Example: --log-level=warn")
	rootCmd.PersistentFlags().BoolVar(&LogColor, "color", true, "Enable colored log output (auto-disabled when using --logfile or when stdout is not a terminal)")
	rootCmd.PersistentFlags().BoolVar(&IgnoreProxy, "ignore-proxy", false, "Ignore HTTP_PROXY environment variable")

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	rootCmd.AddGroup(&cobra.Group{ID: "Jenkins", Title: "Jenkins Commands"})
	rootCmd.AddGroup(&cobra.Group{ID: "Helper", Title: "Various Helper Commands"})
}

type CustomWriter struct {
	Writer io.Writer
}

func (cw *CustomWriter) Write(p []byte) (n int, err error) {
	originalLen := len(p)

	p = bytes.TrimSuffix(p, []byte("\n"))

	// zerolog always terminates events with \n, see https://github.com/rs/zerolog/blob/master/log.go#L474
	newlineChars := []byte("\n")
	if runtime.GOOS == "windows" {
		newlineChars = []byte("\r\n")
	}

	modified := append(p, newlineChars...)

	written, err := cw.Writer.Write(modified)
	if err != nil {
		return 0, err
	}

	if written != len(modified) {
		return 0, io.ErrShortWrite
	}

	return originalLen, nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func initLogger(cmd *cobra.Command) {
	defaultOut := &CustomWriter{Writer: os.Stdout}
	colorEnabled := LogColor
	colorExplicit := cmd.Root().PersistentFlags().Changed("color")

	if LogFile != "" {
		// #nosec G304 - User-provided log file path via --logfile flag, user controls their own filesystem
		runLogFile, err := os.OpenFile(
			LogFile,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			format.FileUserReadWrite,
		)
		if err != nil {
			panic(err)
		}
		CloseLogger()
		logFileMu.Lock()
		logFileHandle = runLogFile
		logFileMu.Unlock()
		defaultOut = &CustomWriter{Writer: runLogFile}

		if !colorExplicit {
			colorEnabled = false
		}
	} else if !colorExplicit && !stdoutIsTerminal() {
		colorEnabled = false
	}

	hitWriter := &logging.HitLevelWriter{}
	if JsonLogoutput {
		hitWriter.SetOutput(defaultOut)
	} else {
		// HitLevelWriter rewrites the JSON event before ConsoleWriter renders it
		hitWriter.SetOutput(zerolog.ConsoleWriter{
			Out:         defaultOut,
			TimeFormat:  time.RFC3339,
			NoColor:     !colorEnabled,
			FormatLevel: formatLevelWithHitColor(colorEnabled),
		})
	}
	logging.SetGlobalHitWriter(hitWriter)
	log.Logger = zerolog.New(hitWriter).With().Timestamp().Logger()
}

// CloseLogger closes the log file opened by --logfile, if any.
func CloseLogger() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFileHandle != nil {
		_ = logFileHandle.Close()
		logFileHandle = nil
	}
}

// formatLevelWithHitColor returns a level formatter that renders the "hit" level in magenta.
func formatLevelWithHitColor(colorEnabled bool) zerolog.Formatter {
	return func(i interface{}) string {
		level, ok := i.(string)
		if !ok {
			return ""
		}

		if !colorEnabled {
			return level
		}

		switch level {
		case logging.HitLevel:
			return "\x1b[35m" + level + "\x1b[0m"
		case "trace":
			return "\x1b[90m" + level + "\x1b[0m"
		case "info":
			return "\x1b[32m" + level + "\x1b[0m"
		case "warn":
			return "\x1b[33m" + level + "\x1b[0m"
		case "error", "fatal", "panic":
			return "\x1b[31m" + level + "\x1b[0m"
		default:
			return level
		}
	}
}

func setGlobalLogLevel(cmd *cobra.Command) {
	if LogLevel != "" {
		switch LogLevel {
		case "trace":
			zerolog.SetGlobalLevel(zerolog.TraceLevel)
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "info":
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		case "warn":
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		default:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			log.Warn().Str("logLevelSpecified", LogLevel).Msg("Invalid log level, defaulting to info")
			return
		}
		log.Debug().Str("level", LogLevel).Msg("Log level set (explicit)")
		return
	}

	if LogDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Log level set to debug (-v)")
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func loadConfigFile(cmd *cobra.Command) {
	if _, err := config.LoadConfig(ConfigFile); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration file")
	}
}
