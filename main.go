package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/12e2395-dot/stock-collector/adapter/bucket"
	"github.com/12e2395-dot/stock-collector/adapter/bucket/folder"
	"github.com/12e2395-dot/stock-collector/adapter/bucket/vault"
	"github.com/12e2395-dot/stock-collector/adapter/dart"
	darthttp "github.com/12e2395-dot/stock-collector/adapter/dart/httpclient"
	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/adapter/database/postgres"
	"github.com/12e2395-dot/stock-collector/adapter/database/scylla"
	"github.com/12e2395-dot/stock-collector/adapter/krx"
	krxhttp "github.com/12e2395-dot/stock-collector/adapter/krx/httpclient"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
	"github.com/12e2395-dot/stock-collector/adapter/logger/console"
	"github.com/12e2395-dot/stock-collector/adapter/queue"
	"github.com/12e2395-dot/stock-collector/adapter/queue/buffer"
	"github.com/12e2395-dot/stock-collector/service/collect"
	"github.com/12e2395-dot/stock-collector/service/corpcode"
	"github.com/12e2395-dot/stock-collector/service/fetch"
	"github.com/12e2395-dot/stock-collector/service/repair"
	"github.com/12e2395-dot/stock-collector/service/writer"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/joho/godotenv"
)

func main() {
	// a .env file is optional, real deployments set the environment directly
	godotenv.Load()

	var l logger.Logger
	l = console.New()

	var db database.Database
	var err error
	switch os.Getenv("STORE") {
	case "scylla":
		db, err = scylla.New(
			envOrPanic("SCYLLA_HOST"),
			envIntOr("SCYLLA_PORT", 9042),
		)
	default:
		db, err = postgres.New(
			envOrPanic("DB_HOST"),
			envOrPanic("DB_PORT"),
			envOrPanic("DB_NAME"),
			envOrPanic("DB_USER"),
			envOrPanic("DB_PASS"),
		)
	}
	if err != nil {
		panic(err)
	}
	defer db.Close()

	if err := db.CreateBaseTables(); err != nil {
		panic(err)
	}

	apiKey := os.Getenv("DART_API_KEY")
	var c dart.Client
	c = darthttp.New(
		apiKey,
		envFloatOr("DART_RPS", 4.0),
		time.Duration(envIntOr("TIMEOUT", 8))*time.Second,
	)

	var market krx.Client
	market = krxhttp.New(&http.Client{Timeout: 15 * time.Second})

	checkpointPath := envOr("CHECKPOINT_FILE", "dart_checkpoint.json")
	var ckpt bucket.Bucket
	ckpt = folder.New(filepath.Dir(checkpointPath))

	// raw responses only get archived when a vault is configured
	var archive bucket.Bucket
	if name := os.Getenv("ARCHIVE_VAULT"); name != "" {
		awsSession, err := session.NewSession()
		if err != nil {
			panic(err)
		}
		archive = vault.New(awsSession, name)
	}

	f := fetch.New(
		c,
		archive,
		l,
		envBoolOr("TREAT_OPERATING_REVENUE_AS_SALES", true),
		envBoolOr("FS_DIV_ONLY_CFS", true),
	)

	ctx := context.Background()

	corpMap, err := corpcode.New(c, market, db, l, apiKey != "").Resolve(ctx)
	if err != nil {
		panic(err)
	}

	budget := collect.NewBudget(envIntOr("MAX_DAILY_CALLS", 30000))

	if envBoolOr("RUN_REPAIR_ZERO", true) {
		fixed, err := repair.New(db, f, l).Run(ctx, corpMap, budget)
		if err != nil {
			l.Error(fmt.Sprintf("Repair pass: %s", err.Error()))
		} else {
			l.Log(fmt.Sprintf("repair done: fixed=%d, calls_left≈%d", fixed, budget.Left()))
		}
	}

	var rowQueue queue.Queue
	rowQueue = buffer.New()

	s := collect.New(f, db, ckpt, rowQueue, l, collect.Config{
		Workers:       envIntOr("MAX_WORKERS", 6),
		Years:         years(),
		SampleTickers: envIntOr("SAMPLE_TICKERS", 0),
		SkipIfExists:  envBoolOr("SKIP_IF_EXISTS", true),
		CheckpointKey: filepath.Base(checkpointPath),
	})

	w := writer.New(db, rowQueue, l)
	saved := make(chan error, 1)
	go func() {
		saved <- w.SaveRows()
	}()

	if _, err := s.Run(ctx, corpMap, budget); err != nil {
		l.Error(fmt.Sprintf("Collect: %s", err.Error()))
	}
	rowQueue.Close()

	if err := <-saved; err != nil {
		l.Error(fmt.Sprintf("Save rows: %s", err.Error()))
	}
}

// years returns the configured business years, defaulting to the previous
// and the current one.
func years() []string {
	if env := strings.TrimSpace(os.Getenv("YEARS")); env != "" {
		out := []string{}
		for _, y := range strings.Split(env, ",") {
			if y = strings.TrimSpace(y); y != "" {
				out = append(out, y)
			}
		}
		return out
	}
	current := time.Now().Year()
	return []string{strconv.Itoa(current - 1), strconv.Itoa(current)}
}

func envOrPanic(key string) string {
	value := os.Getenv(key)
	if len(value) < 1 {
		panic(errors.New(fmt.Sprintf("Environment variable '%s' missing", key)))
	}
	return value
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); len(value) > 0 {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	value := os.Getenv(key)
	if len(value) < 1 {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(fmt.Errorf("Environment variable '%s': %w", key, err))
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if len(value) < 1 {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		panic(fmt.Errorf("Environment variable '%s': %w", key, err))
	}
	return f
}

func envBoolOr(key string, fallback bool) bool {
	value := os.Getenv(key)
	if len(value) < 1 {
		return fallback
	}
	return value == "1"
}
