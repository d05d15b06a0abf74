package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // AGENTSMITH_DATABASE_URL (optional, empty = in-memory store)
	HTTPAddr    string // AGENTSMITH_HTTP_ADDR (default ":8080")
	GRPCAddr    string // AGENTSMITH_GRPC_ADDR (optional, empty = no gRPC health server)
	NATSURL     string // AGENTSMITH_NATS_URL (optional, empty = no event mirror)
	AuthTokens  string // AGENTSMITH_AUTH_TOKENS (optional, token=user[:email],...; empty = auth disabled)

	PayloadMaxBytes   int           // AGENTSMITH_PAYLOAD_MAX_BYTES (default 65536)
	SweepInterval     time.Duration // AGENTSMITH_SWEEP_INTERVAL (default 5m)
	HeartbeatInterval time.Duration // AGENTSMITH_HEARTBEAT_INTERVAL (default 15s)
	PresenceWindow    time.Duration // AGENTSMITH_PRESENCE_WINDOW (default 10m)
	StreamBuffer      int           // AGENTSMITH_STREAM_BUFFER (default 256)
	AutoCreateRooms   bool          // AGENTSMITH_AUTO_CREATE_ROOMS (default true)

	// Snapshot settings
	SnapshotInterval   time.Duration // AGENTSMITH_SNAPSHOT_INTERVAL (default 0 = disabled)
	SnapshotS3Bucket   string        // AGENTSMITH_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // AGENTSMITH_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // AGENTSMITH_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // AGENTSMITH_SNAPSHOT_S3_KEY (default "agentsmith/snapshot.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("AGENTSMITH_DATABASE_URL"),
		HTTPAddr:           envOrDefault("AGENTSMITH_HTTP_ADDR", ":8080"),
		GRPCAddr:           os.Getenv("AGENTSMITH_GRPC_ADDR"),
		NATSURL:            os.Getenv("AGENTSMITH_NATS_URL"),
		AuthTokens:         os.Getenv("AGENTSMITH_AUTH_TOKENS"),
		SnapshotS3Bucket:   os.Getenv("AGENTSMITH_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Endpoint: os.Getenv("AGENTSMITH_SNAPSHOT_S3_ENDPOINT"),
		SnapshotS3Region:   envOrDefault("AGENTSMITH_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Key:      envOrDefault("AGENTSMITH_SNAPSHOT_S3_KEY", "agentsmith/snapshot.jsonl"),
	}

	var err error
	if c.PayloadMaxBytes, err = envInt("AGENTSMITH_PAYLOAD_MAX_BYTES", 65536); err != nil {
		return nil, err
	}
	if c.StreamBuffer, err = envInt("AGENTSMITH_STREAM_BUFFER", 256); err != nil {
		return nil, err
	}
	if c.SweepInterval, err = envDuration("AGENTSMITH_SWEEP_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if c.HeartbeatInterval, err = envDuration("AGENTSMITH_HEARTBEAT_INTERVAL", "15s"); err != nil {
		return nil, err
	}
	if c.PresenceWindow, err = envDuration("AGENTSMITH_PRESENCE_WINDOW", "10m"); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = envDuration("AGENTSMITH_SNAPSHOT_INTERVAL", "0"); err != nil {
		return nil, err
	}

	autoCreate, err := strconv.ParseBool(envOrDefault("AGENTSMITH_AUTO_CREATE_ROOMS", "true"))
	if err != nil {
		return nil, fmt.Errorf("AGENTSMITH_AUTO_CREATE_ROOMS: %w", err)
	}
	c.AutoCreateRooms = autoCreate

	if c.PayloadMaxBytes <= 0 {
		return nil, fmt.Errorf("AGENTSMITH_PAYLOAD_MAX_BYTES must be positive, got %d", c.PayloadMaxBytes)
	}
	if c.SweepInterval <= 0 {
		return nil, fmt.Errorf("AGENTSMITH_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("AGENTSMITH_HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
