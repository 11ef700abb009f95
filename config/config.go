// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// S3Config holds object storage settings for an S3-compatible endpoint such as MinIO.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// CatalogConfig selects the duplicate index. DSN wins over URL when both are set.
type CatalogConfig struct {
	URL   string
	Token string
	DSN   string
}

// AnalysisConfig holds the remote content analysis service settings.
type AnalysisConfig struct {
	Host  string
	Model string
	Token string
}

// Config is the process configuration for the filedrop CLI.
// It is populated from environment variables; a .env file is loaded by the
// CLI before Load is called. Real environment variables take precedence.
type Config struct {
	LogLevel      string
	SessionsDir   string
	SessionTTL    time.Duration
	Endpoint      string
	EndpointToken string
	S3            S3Config
	Catalog       CatalogConfig
	Analysis      AnalysisConfig
	ScopeID       string
	Concurrency   int
	ChunkSize     int64
	ChunkTimeout  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	BatchPause    time.Duration
	MaxFileSize   int64
	MetricsFile   string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:      getEnv("FILEDROP_LOG_LEVEL", "info"),
		SessionsDir:   getEnv("FILEDROP_SESSIONS_DIR", defaultSessionsDir()),
		SessionTTL:    getEnvDuration("FILEDROP_SESSION_TTL", 24*time.Hour),
		Endpoint:      getEnv("FILEDROP_ENDPOINT", ""),
		EndpointToken: getEnv("FILEDROP_ENDPOINT_TOKEN", ""),
		S3: S3Config{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Region:    getEnv("MINIO_REGION", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			Prefix:    getEnv("MINIO_PREFIX", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Catalog: CatalogConfig{
			URL:   getEnv("FILEDROP_CATALOG_URL", ""),
			Token: getEnv("FILEDROP_CATALOG_TOKEN", ""),
			DSN:   getEnv("FILEDROP_CATALOG_DSN", ""),
		},
		Analysis: AnalysisConfig{
			Host:  getEnv("FILEDROP_ANALYSIS_HOST", ""),
			Model: getEnv("FILEDROP_ANALYSIS_MODEL", ""),
			Token: getEnv("FILEDROP_ANALYSIS_TOKEN", ""),
		},
		ScopeID:      getEnv("FILEDROP_SCOPE", ""),
		Concurrency:  getEnvInt("FILEDROP_CONCURRENCY", 2),
		ChunkSize:    int64(getEnvInt("FILEDROP_CHUNK_SIZE", 5<<20)),
		ChunkTimeout: getEnvDuration("FILEDROP_CHUNK_TIMEOUT", 30*time.Second),
		MaxRetries:   getEnvInt("FILEDROP_MAX_RETRIES", 3),
		RetryDelay:   getEnvDuration("FILEDROP_RETRY_DELAY", time.Second),
		BatchPause:   getEnvDuration("FILEDROP_BATCH_PAUSE", 500*time.Millisecond),
		MaxFileSize:  int64(getEnvInt("FILEDROP_MAX_FILE_SIZE", 2<<30)),
		MetricsFile:  getEnv("FILEDROP_METRICS_FILE", ""),
	}
}

func defaultSessionsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".filedrop"
	}
	return filepath.Join(dir, "filedrop")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
