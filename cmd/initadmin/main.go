// initadmin creates the first administrator, holding every permission, directly in the
// configured store. The password is read from IDENTITY_ADMIN_PASSWORD or, when unset,
// from the first line of standard input.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/infra/app"
	"github.com/arklim/identity-server/internal/infra/config"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/usecase"
)

const passwordEnv = "IDENTITY_ADMIN_PASSWORD"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var configFile string
	var input usecase.BootstrapInput
	flagSet := pflag.NewFlagSet("initadmin", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "path to a config file (environment overrides it)")
	flagSet.StringVar(&input.Name, "name", "admin", "login name of the administrator")
	flagSet.StringVar(&input.RealName, "real-name", "", "display name of the administrator")
	flagSet.StringVar(&input.Email, "email", "", "email address of the administrator (required)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if input.Email == "" {
		return errors.New("--email is required")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	input.Password = password

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Storage == "memory" {
		return errors.New("initadmin needs persistent storage, app.storage is memory")
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	_, credentials, err := app.NewCredentials(cfg)
	if err != nil {
		return err
	}

	admin, err := usecase.BootstrapAdmin(ctx, storage.Store, credentials, nil, input)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("administrator created",
		zap.String("admin_id", admin.ID.String()),
		zap.String("name", admin.Name),
		zap.String("email", logger.MaskEmail(admin.PrimaryEmail())),
	)
	fmt.Println(admin.ID)
	return nil
}

func readPassword() (string, error) {
	if password := os.Getenv(passwordEnv); password != "" {
		return password, nil
	}
	fmt.Fprintf(os.Stderr, "password (or set %s): ", passwordEnv)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
