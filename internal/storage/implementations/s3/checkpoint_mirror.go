package s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/errors"
)

const backendName = "s3"

// Config holds configuration for the S3 checkpoint mirror
type Config struct {
	Region          string        `json:"region"`
	Bucket          string        `json:"bucket"`
	AccessKeyID     string        `json:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty"`
	Endpoint        string        `json:"endpoint,omitempty"`
	ForcePathStyle  bool          `json:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl"`
	Prefix          string        `json:"prefix"`
	Timeout         time.Duration `json:"timeout"`
	MaxRetries      int           `json:"max_retries"`
}

// CheckpointMirror copies checkpoint files to and from an S3 bucket
type CheckpointMirror struct {
	config     *Config
	uploader   s3manageriface.UploaderAPI
	downloader s3manageriface.DownloaderAPI
	logger     *logrus.Logger
	mu         sync.Mutex
}

// NewCheckpointMirror creates a new S3 checkpoint mirror
func NewCheckpointMirror(config *Config, logger *logrus.Logger) (*CheckpointMirror, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "S3 bucket is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CheckpointMirror{config: config, logger: logger}, nil
}

// Connect creates the AWS session and transfer managers
func (m *CheckpointMirror) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploader != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(m.config.Region),
		MaxRetries: aws.Int(m.config.MaxRetries),
	}
	if m.config.AccessKeyID != "" && m.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			m.config.AccessKeyID,
			m.config.SecretAccessKey,
			m.config.SessionToken,
		)
	}
	if m.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(m.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(m.config.ForcePathStyle)
	}
	if m.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapStorageError(err, backendName, errors.OpConnect, "failed to create AWS session")
	}
	m.uploader = s3manager.NewUploader(sess)
	m.downloader = s3manager.NewDownloader(sess)

	m.logger.WithFields(logrus.Fields{
		"region": m.config.Region,
		"bucket": m.config.Bucket,
	}).Info("Connected to S3")

	return nil
}

// Key returns the object key a checkpoint file is stored under.
func (m *CheckpointMirror) Key(localPath string) string {
	return path.Join(strings.Trim(m.config.Prefix, "/"), "checkpoints", filepath.Base(localPath))
}

// Upload copies localPath to the bucket and returns its key.
func (m *CheckpointMirror) Upload(ctx context.Context, localPath string) (string, error) {
	if err := m.Connect(ctx); err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.WrapStorageError(err, backendName, errors.OpUpload, "failed to open checkpoint")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	key := m.Key(localPath)
	_, err = m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", errors.WrapStorageError(err, backendName, errors.OpUpload,
			fmt.Sprintf("failed to upload checkpoint to s3://%s/%s", m.config.Bucket, key))
	}

	m.logger.WithFields(logrus.Fields{
		"bucket": m.config.Bucket,
		"key":    key,
	}).Info("Mirrored checkpoint")

	return key, nil
}

// Download fetches the mirrored copy of the checkpoint named by localPath into localPath.
// The target directory must already exist.
func (m *CheckpointMirror) Download(ctx context.Context, localPath string) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), filepath.Base(localPath)+".download-*")
	if err != nil {
		return errors.WrapStorageError(err, backendName, errors.OpQuery, "failed to create download target")
	}
	tmpName := tmp.Name()

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	key := m.Key(localPath)
	_, err = m.downloader.DownloadWithContext(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(m.config.Bucket),
		Key:    aws.String(key),
	})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.WrapStorageError(err, backendName, errors.OpQuery,
			fmt.Sprintf("failed to download s3://%s/%s", m.config.Bucket, key))
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return errors.WrapStorageError(err, backendName, errors.OpQuery, "failed to place downloaded checkpoint")
	}

	m.logger.WithFields(logrus.Fields{
		"bucket": m.config.Bucket,
		"key":    key,
		"path":   localPath,
	}).Info("Fetched mirrored checkpoint")

	return nil
}
