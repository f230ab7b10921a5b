package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/evalstore/internal/handler"
	appI18n "github.com/pavelanni/evalstore/internal/i18n"
	"github.com/pavelanni/evalstore/internal/model"
	"github.com/pavelanni/evalstore/internal/store"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evalstore",
		Short: "Storage service for timed multiple-choice evaluations",
	}

	serve := serveCmd()
	root.AddCommand(serve, migrateCmd(), importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `evalstore --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, mysql)")
	f.String("db-path", "evalstore.db", "SQLite database path")
	f.String("db-host", "localhost:3306", "MySQL host:port")
	f.String("db-name", "evaluaciones", "MySQL database name")
	f.String("db-user", "", "MySQL username")
	f.String("db-password", "", "MySQL password (or set EVALSTORE_DB_PASSWORD)")
	f.String("db-charset", store.DefaultCharset, "MySQL connection character set")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("evaluations", "e", nil, "Evaluation JSON files to import at startup (repeatable)")
	f.StringP("lang", "l", "es", "Default language for API messages (es, en)")
	addCommonFlags(f)
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE:  runMigrate,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import evaluation JSON files, skipping ones already imported",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export evaluations with their questions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EVALSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("evalstore")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/evalstore")
	v.AddConfigPath("/etc/evalstore")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func storeConfig(v *viper.Viper) store.Config {
	return store.Config{
		Driver:   v.GetString("db-driver"),
		Path:     v.GetString("db-path"),
		Host:     v.GetString("db-host"),
		Name:     v.GetString("db-name"),
		User:     v.GetString("db-user"),
		Password: v.GetString("db-password"),
		Charset:  v.GetString("db-charset"),
	}
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	db, err := store.Open(ctx, storeConfig(v), store.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := importFiles(ctx, db, v.GetStringSlice("evaluations")); err != nil {
		return fmt.Errorf("import evaluations: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	slog.Debug("loaded translations", "languages", appI18n.Languages())

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	handler.New(db).Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"driver", v.GetString("db-driver"),
		"lang", lang,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open applies pending migrations.
	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	return db.Close()
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	return importFiles(ctx, db, args)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	evals, err := db.ExportEvaluations(ctx)
	if err != nil {
		return fmt.Errorf("export evaluations: %w", err)
	}

	export := model.Export{
		ExportedAt:  time.Now().UTC(),
		Count:       len(evals),
		Evaluations: evals,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// importFiles imports each evaluation document once. A file whose content
// changed after it was imported is skipped rather than imported again.
func importFiles(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.ImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("evaluation file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("evaluation file changed since last import, skipping to avoid duplicating it",
				"path", path)
			continue
		}

		var doc model.EvaluationImport
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		id, err := db.ImportEvaluation(ctx, doc)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported evaluation file", "path", path, "id", id, "questions", len(doc.Questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
