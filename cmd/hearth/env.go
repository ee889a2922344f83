package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/hearth/internal/config"
	"github.com/ChamsBouzaiene/hearth/internal/logging"
)

type runtimeEnv struct {
	Root   string
	Config *config.Config
	Logger *logging.Logger
}

func (r *runtimeEnv) Close() {
	if r.Logger != nil {
		r.Logger.Close()
	}
}

// prepareRuntimeEnv resolves the sandbox root, loads the layered
// configuration for it and builds the logger.
func prepareRuntimeEnv(cmd *cobra.Command, opts *rootOptions) (*runtimeEnv, error) {
	root := opts.root
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("root is not a valid directory: %s", absRoot)
	}

	var manager *config.Manager
	if opts.configDir != "" {
		manager = config.NewManagerAt(opts.configDir)
	} else {
		manager, err = config.NewManager()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := manager.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Console: cmd.ErrOrStderr(),
		File:    cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "user", manager.GetConfigPath(), "project", config.ProjectConfigPath(absRoot))

	return &runtimeEnv{Root: absRoot, Config: cfg, Logger: logger}, nil
}
