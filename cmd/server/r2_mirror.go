package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"blocklife.gg/internal/persistence/r2s3"
)

// Off-site mirroring is opt-in via environment so local runs stay
// dependency-free: BL_R2_MIRROR=true plus endpoint/bucket/credentials.
func buildMirror(gameDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("BL_R2_MIRROR", false) {
		return nil, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("BL_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("BL_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("BL_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("BL_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("BL_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("BL_R2_MIRROR=true but BL_R2_ENDPOINT/BL_R2_BUCKET/BL_R2_ACCESS_KEY_ID/BL_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	workers := envInt("BL_R2_UPLOAD_WORKERS", 2)
	queueCap := envInt("BL_R2_QUEUE_CAPACITY", 1024)
	return r2s3.NewMirror(client, gameDir, prefix, workers, queueCap, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
