package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/qngenius/qngenius/internal/handler"
	appI18n "github.com/qngenius/qngenius/internal/i18n"
	"github.com/qngenius/qngenius/internal/importer"
	"github.com/qngenius/qngenius/internal/llm"
	"github.com/qngenius/qngenius/internal/model"
	"github.com/qngenius/qngenius/internal/paper"
	"github.com/qngenius/qngenius/internal/similarity"
	"github.com/qngenius/qngenius/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qngenius",
		Short: "Question bank and exam paper generator",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), generateCmd(), exportQuestionsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `qngenius --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "qngenius.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Fallback UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /qb)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set QNGENIUS_ADMIN_PASSWORD)")
	f.Duration("session-ttl", store.DefaultSessionTTL, "Login session lifetime")
	f.Int64("max-upload-size", 10<<20, "Maximum import upload size in bytes")
	f.Int("batch-size", importer.DefaultBatchSize, "Questions inserted per import transaction")
	f.Float64("similarity-threshold", similarity.DefaultThreshold, "Similarity above which a question is a duplicate")
	f.Int("screen-workers", 4, "Concurrent workers screening import rows")
	f.Bool("suggest-bloom", false, "Ask the LLM for a Bloom level on imported rows without one")
	f.Duration("job-retention", handler.DefaultJobRetention, "How long finished import jobs can be polled")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import questions from a CSV file into a unit",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "qngenius.db", "SQLite database path")
	f.StringP("file", "f", "", "CSV file to import (required)")
	f.Int64("unit", 0, "Unit ID the questions are filed under (required)")
	f.String("user", "admin", "Username recorded as the questions' creator")
	f.Bool("skip-invalid", true, "Skip rows that fail validation")
	f.Bool("check-duplicates", true, "Mark rows similar to existing questions as duplicates")
	f.Bool("dry-run", false, "Print the preview without saving")
	f.Bool("force", false, "Import even if the file was already imported unchanged")
	f.Int("batch-size", importer.DefaultBatchSize, "Questions inserted per transaction")
	f.Float64("similarity-threshold", similarity.DefaultThreshold, "Similarity above which a question is a duplicate")
	f.Int("screen-workers", 4, "Concurrent workers screening rows")
	f.Bool("suggest-bloom", false, "Ask the LLM for a Bloom level on rows without one")
	addLLMFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a question paper from a blueprint",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("db", "qngenius.db", "SQLite database path")
	f.Int64("blueprint", 0, "Blueprint ID (required)")
	f.String("format", "text", "Output format (text, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("blueprint")
	return cmd
}

func exportQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-questions",
		Short: "Export a subject's questions as importable CSV",
		RunE:  runExportQuestions,
	}
	f := cmd.Flags()
	f.String("db", "qngenius.db", "SQLite database path")
	f.Int64("subject", 0, "Subject ID (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("subject")
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

	v.SetEnvPrefix("QNGENIUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qngenius")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qngenius")
	v.AddConfigPath("/etc/qngenius")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newLLMClient(v *viper.Viper) *llm.Client {
	slog.Info("bloom suggestions enabled", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	return llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServeConfig{
		BasePath:            basePath,
		SecureCookies:       v.GetBool("secure-cookies"),
		SessionTTL:          v.GetDuration("session-ttl"),
		MaxUploadSize:       v.GetInt64("max-upload-size"),
		BatchSize:           v.GetInt("batch-size"),
		SuggestBloom:        v.GetBool("suggest-bloom"),
		SimilarityThreshold: v.GetFloat64("similarity-threshold"),
		ScreenWorkers:       v.GetInt("screen-workers"),
		JobRetention:        v.GetDuration("job-retention"),
	}

	var classifier importer.BloomClassifier
	if cfg.SuggestBloom {
		classifier = newLLMClient(v)
	}

	h, err := handler.New(db, classifier, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanup(ctx, db, h, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"lang", lang,
			"base_path", basePath,
			"batch_size", cfg.BatchSize,
			"similarity_threshold", cfg.SimilarityThreshold,
			"suggest_bloom", cfg.SuggestBloom,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}
	// Let running imports finish their batches before the database closes.
	h.Wait()
	return nil
}

// cleanup periodically drops expired login sessions and old import jobs.
func cleanup(ctx context.Context, db *store.Store, h *handler.Handler, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := db.CleanupExpiredSessions(); err != nil {
				slog.Warn("failed to clean up sessions", "error", err)
			}
			h.Cleanup(time.Now())
		}
	}
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	unit, err := db.GetUnit(ctx, v.GetInt64("unit"))
	if err != nil {
		return fmt.Errorf("get unit: %w", err)
	}
	if unit == nil {
		return fmt.Errorf("unit %d not found", v.GetInt64("unit"))
	}
	user, err := db.GetUserByUsername(v.GetString("user"))
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q not found", v.GetString("user"))
	}

	path := v.GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	dryRun := v.GetBool("dry-run")
	hash := importer.Hash(data)
	if !dryRun && !v.GetBool("force") {
		stored, err := db.GetImportedFileHash(path, unit.ID)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if stored == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			return nil
		}
	}

	rows, err := importer.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	opts := []importer.Option{
		importer.WithBatchSize(v.GetInt("batch-size")),
		importer.WithThreshold(v.GetFloat64("similarity-threshold")),
		importer.WithWorkers(v.GetInt("screen-workers")),
	}
	if v.GetBool("suggest-bloom") {
		opts = append(opts, importer.WithBloomClassifier(newLLMClient(v)))
	}
	im := importer.New(db, opts...)
	iopts := importer.Options{
		SubjectID:       unit.SubjectID,
		UnitID:          unit.ID,
		CreatedBy:       user.ID,
		CheckDuplicates: v.GetBool("check-duplicates"),
		SkipInvalid:     v.GetBool("skip-invalid"),
	}

	previewed, err := im.Preview(ctx, rows, iopts)
	if err != nil {
		return fmt.Errorf("preview %s: %w", path, err)
	}
	sum := importer.Summarize(previewed)
	for _, row := range previewed {
		switch {
		case !importer.Include(row.Status, iopts.SkipInvalid):
			slog.Warn("row rejected", "line", row.Line, "status", row.Status, "duplicate_of", row.DuplicateOf)
		case row.Status != importer.StatusValid:
			slog.Warn("row imported with problems", "line", row.Line, "status", row.Status)
		}
	}
	slog.Info("preview", "path", path, "total", sum.Total, "valid", sum.Valid,
		"invalid", sum.Invalid, "duplicates", sum.Duplicates)
	if dryRun {
		return nil
	}

	res, err := im.Commit(ctx, previewed, iopts, func(p importer.Progress) {
		slog.Debug("import progress", "message", p.Message, "done", p.Done, "total", p.Total)
	})
	if err != nil {
		return fmt.Errorf("import %s: %d questions saved before failure: %w", path, res.Imported, err)
	}
	if err := db.SetImportedFileHash(path, unit.ID, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "imported", res.Imported,
		"skipped", res.Skipped, "batches", res.Batches)
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := paper.NewGenerator(db, db).Generate(ctx, v.GetInt64("blueprint"))
	if err != nil {
		return fmt.Errorf("generate paper: %w", err)
	}
	for i, c := range export.Criteria {
		if c.Drawn < c.Requested {
			slog.Warn("criterion short of questions", "criterion", i+1,
				"drawn", c.Drawn, "requested", c.Requested)
		}
	}

	var data []byte
	switch strings.ToLower(v.GetString("format")) {
	case "json":
		data, err = json.MarshalIndent(export, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		data = append(data, '\n')
	case "text":
		data = []byte(export.Body)
	default:
		return fmt.Errorf("unknown format %q", v.GetString("format"))
	}

	return writeOutput(v.GetString("output"), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func runExportQuestions(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	questions, err := db.ExportSubjectQuestions(ctx, v.GetInt64("subject"))
	if err != nil {
		return fmt.Errorf("export questions: %w", err)
	}
	rows := make([]importer.Row, len(questions))
	for i, q := range questions {
		rows[i] = importer.Row{
			Line:       i + 2,
			Text:       q.Text,
			Type:       string(q.Type),
			Marks:      q.Marks,
			Difficulty: string(q.Difficulty),
			BloomLevel: string(q.BloomLevel),
			Keywords:   q.Keywords,
			Unit:       q.UnitName,
		}
	}

	if err := writeOutput(v.GetString("output"), func(w io.Writer) error {
		return importer.WriteCSV(w, rows)
	}); err != nil {
		return err
	}
	slog.Info("exported questions", "subject", v.GetInt64("subject"), "count", len(rows))
	return nil
}

func writeOutput(path string, write func(io.Writer) error) error {
	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := write(w); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QNGENIUS_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
