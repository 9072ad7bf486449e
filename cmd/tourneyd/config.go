package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tourneyforge/tourney"
)

const (
	backendMemory = "memory"
	backendFile   = "file"
	backendS3     = "s3"
	backendSQL    = "sql"
	backendRedis  = "redis"
)

type settings struct {
	Addr       string `env:"TOURNEYD_ADDR" envDefault:":8080"`
	AdminToken string `env:"TOURNEYD_ADMIN_TOKEN"`
	Debug      bool   `env:"TOURNEYD_DEBUG"`

	// ConfigFile is the engine JSON config, the same format the Nakama plugin reads.
	ConfigFile    string `env:"TOURNEYD_CONFIG"`
	ProvincesFile string `env:"TOURNEYD_PROVINCES"`

	Backend string `env:"TOURNEYD_BACKEND" envDefault:"file"`
	DataDir string `env:"TOURNEYD_DATA_DIR" envDefault:"data"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"tourney"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Prefix          string `env:"S3_PREFIX" envDefault:"tourney"`
	S3Region          string `env:"S3_REGION" envDefault:"auto"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3AccessKeySecret string `env:"S3_ACCESS_KEY_SECRET"`
}

func loadSettings() (*settings, error) {
	s := &settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

func (s *settings) engineConfig() (*tourney.Config, error) {
	if s.ConfigFile == "" {
		return &tourney.Config{}, nil
	}
	data, err := os.ReadFile(s.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.ConfigFile, err)
	}
	return tourney.ParseConfig(data)
}

func (s *settings) bonusTable(config *tourney.Config) (tourney.BonusTable, error) {
	if config.BonusTiersFile == "" {
		return tourney.NoBonus{}, nil
	}
	data, err := os.ReadFile(config.BonusTiersFile)
	if err != nil {
		return nil, fmt.Errorf("read bonus tiers %s: %w", config.BonusTiersFile, err)
	}
	return tourney.ParseBonusTable(data)
}

func (s *settings) membership() (*tourney.StaticMembership, error) {
	if s.ProvincesFile == "" {
		return tourney.NewStaticMembership(nil), nil
	}
	data, err := os.ReadFile(s.ProvincesFile)
	if err != nil {
		return nil, fmt.Errorf("read provinces %s: %w", s.ProvincesFile, err)
	}
	return tourney.ParseStaticMembership(data)
}

// documentStore opens the configured persistence backend. The returned closer releases its connections.
func (s *settings) documentStore(ctx context.Context) (tourney.DocumentStore, func() error, error) {
	noop := func() error { return nil }
	switch s.Backend {
	case backendMemory:
		return tourney.NewMemoryDocumentStore(), noop, nil
	case backendFile:
		store, err := tourney.NewFileDocumentStore(s.DataDir)
		return store, noop, err
	case backendS3:
		client, err := s.s3Client(ctx)
		if err != nil {
			return nil, nil, err
		}
		return tourney.NewS3DocumentStore(client, s.S3Bucket, s.S3Prefix), noop, nil
	case backendSQL:
		if s.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
		db, err := gorm.Open(postgres.Open(s.DatabaseURL), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		store, err := tourney.NewSQLDocumentStore(db)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return store, sqlDB.Close, nil
	case backendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.RedisAddr},
			Password: s.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return tourney.NewRedisDocumentStore(client, s.RedisPrefix), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", s.Backend)
}

func (s *settings) s3Client(ctx context.Context) (*s3.Client, error) {
	if s.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET environment variable not set")
	}
	options := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.S3Region)}
	if s.S3AccessKeyID != "" {
		options = append(options, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.S3AccessKeyID, s.S3AccessKeySecret, "",
		)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(s.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
