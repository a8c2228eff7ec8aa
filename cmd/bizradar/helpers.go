package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/analyzer"
	"github.com/yeonjae-dev/bizradar/internal/config"
	"github.com/yeonjae-dev/bizradar/internal/notestore"
	"github.com/yeonjae-dev/bizradar/internal/pipeline"
	"github.com/yeonjae-dev/bizradar/internal/source"
	"github.com/yeonjae-dev/bizradar/internal/storage"
)

// dataDir resolves the local data directory.
func dataDir() string {
	if dir := viper.GetString("data.dir"); dir != "" {
		return config.ExpandPath(dir)
	}
	return config.DefaultDataDir()
}

// openNotes opens the local note store.
func openNotes() (*notestore.Store, error) {
	return notestore.New(filepath.Join(dataDir(), "notes"))
}

// openScans opens the local scan database.
func openScans() (*storage.SQLiteStore, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir(), "bizradar.db")
	}
	return storage.NewSQLiteStore(config.ExpandPath(dbPath))
}

// newAnalyzer builds the analyzer from configuration.
func newAnalyzer() (*analyzer.Analyzer, error) {
	return analyzer.New(analyzer.Config{
		Provider:    viper.GetString("analyzer.provider"),
		APIKey:      viper.GetString("analyzer.api_key"),
		Model:       viper.GetString("analyzer.model"),
		Temperature: viper.GetFloat64("analyzer.temperature"),
		MaxTokens:   viper.GetInt("analyzer.max_tokens"),
		CacheTTL:    viper.GetDuration("analyzer.cache_ttl"),
	})
}

// newSource builds the portal client from configuration.
func newSource() (*source.PortalClient, error) {
	return source.NewPortalClient(source.PortalConfig{
		BaseURL: viper.GetString("portal.url"),
		APIKey:  viper.GetString("portal.api_key"),
	})
}

// runnerConfig reads the pacing knobs.
func runnerConfig() pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		AnalyzerInterval: viper.GetDuration("sync.analyzer_interval"),
	}
}

// pipelineClient builds the streaming client for run commands.
func pipelineClient() *pipeline.Client {
	timeout := viper.GetDuration("client.inactivity_timeout")
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return pipeline.NewClient(pipeline.ClientConfig{
		BaseURL:           viper.GetString("server.url"),
		InactivityTimeout: timeout,
	})
}

// apiRequest performs one JSON request against the configured server.
func apiRequest(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := viper.GetString("server.url") + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
			return fmt.Errorf("server error (status %d): %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("server error (status %d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
