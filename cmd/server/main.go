package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KevinKickass/HaptiKnitConsole/internal/auth"
	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/system"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	var dev bool
	var hashPassword bool

	flagSet := pflag.NewFlagSet("haptiknit-console", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "configs/config.yaml", "path to the YAML config file")
	flagSet.BoolVar(&dev, "dev", false, "human readable debug logging")
	flagSet.BoolVar(&hashPassword, "hash-password", false, "read a password from stdin, print its argon2id hash and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if hashPassword {
		if err := printPasswordHash(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Logger initialisieren
	newLogger := zap.NewProduction
	if dev {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Config laden
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.String("path", configPath), zap.Error(err))
	}

	logger.Info("Config loaded successfully", zap.String("path", configPath))

	lifecycle, err := system.NewLifecycleManager(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create console", zap.Error(err))
	}

	if err := lifecycle.Start(); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("HaptiKnit console started successfully")

	// Graceful Shutdown auf Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("HaptiKnit console stopped successfully")
}

// printPasswordHash produces a value for auth.operators[].password_hash.
func printPasswordHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("empty password")
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
