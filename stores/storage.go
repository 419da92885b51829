package stores

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"inkboard/core"
	"inkboard/stores/aws"
	"inkboard/stores/filesystem"
	"inkboard/stores/memory"
	"inkboard/stores/postgres"
	"inkboard/stores/sqlite"
)

const (
	defaultLocalPath = "./data"
	defaultSQLiteDSN = "inkboard.db"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetStore picks the backend named by STORAGE_TYPE. Unknown or empty values
// fall back to memory.
func GetStore(ctx context.Context) (core.Store, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	storageField := logrus.Fields{
		"storageType": storageType,
	}

	var (
		store core.Store
		err   error
	)
	switch storageType {
	case "filesystem":
		basePath := getenv("LOCAL_STORAGE_PATH", defaultLocalPath)
		storageField["basePath"] = basePath
		store, err = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := getenv("DATA_SOURCE_NAME", defaultSQLiteDSN)
		storageField["dataSourceName"] = dataSourceName
		storageField["cgo"] = sqlite.CGOEnabled
		store, err = sqlite.NewStore(dataSourceName)
	case "postgres":
		dsn := os.Getenv("POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is not set")
		}
		store, err = postgres.NewStore(ctx, dsn)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is not set")
		}
		storageField["bucketName"] = bucketName
		store, err = aws.NewStore(ctx, bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	if err != nil {
		logrus.WithFields(storageField).WithError(err).Error("Failed to open storage")
		return nil, fmt.Errorf("open %s store: %w", storageType, err)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
