package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
)

func main() {
	var configPath string
	var userID int64

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(userID, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, token)
			return err
		},
	}
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	tokenCmd.Flags().Int64Var(&userID, "user-id", 0, "user id the token identifies")

	rootCmd.AddCommand(runCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}
