package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"consultation-relay/internal/meeting"
)

// MinioConfig holds the MinIO connection settings.
type MinioConfig struct {
	Enabled  bool
	Endpoint string
	User     string
	Password string
	Bucket   string
	UseSSL   bool
}

// MinioClient archives closed-session transcripts. A disabled client
// accepts every call and stores nothing.
type MinioClient struct {
	client  *minio.Client
	bucket  string
	enabled bool
	now     func() time.Time
}

// NewMinio connects to MinIO and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	if !cfg.Enabled {
		return &MinioClient{enabled: false}, nil
	}
	if cfg.Endpoint == "" || cfg.User == "" || cfg.Password == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio config missing (endpoint, user, password, bucket)")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Password, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioClient{
		client:  client,
		bucket:  cfg.Bucket,
		enabled: true,
		now:     time.Now,
	}, nil
}

func (m *MinioClient) Enabled() bool {
	return m != nil && m.enabled
}

func (m *MinioClient) Bucket() string {
	if m == nil {
		return ""
	}
	return m.bucket
}

func (m *MinioClient) UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, int64, error) {
	if !m.Enabled() {
		return "", 0, fmt.Errorf("minio disabled")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reader := bytes.NewReader(data)
	info, err := m.client.PutObject(ctx, m.bucket, objectKey, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", 0, err
	}
	return info.ETag, info.Size, nil
}

type transcriptDocument struct {
	SessionID  string                `json:"sessionId"`
	ArchivedAt time.Time             `json:"archivedAt"`
	Messages   []meeting.ChatMessage `json:"messages"`
}

// TranscriptKey is the object key a session transcript is stored under.
func TranscriptKey(sessionID string, archivedAt time.Time) string {
	return SafeObjectKey("sessions", sessionID, strconv.FormatInt(archivedAt.Unix(), 10)+".json")
}

// ArchiveTranscript uploads the chat history of a closed session as JSON.
func (m *MinioClient) ArchiveTranscript(ctx context.Context, sessionID string, messages []meeting.ChatMessage) error {
	if !m.Enabled() || len(messages) == 0 {
		return nil
	}

	archivedAt := m.now().UTC()
	data, err := json.Marshal(transcriptDocument{SessionID: sessionID, ArchivedAt: archivedAt, Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	if _, _, err := m.UploadBytes(ctx, TranscriptKey(sessionID, archivedAt), data, "application/json"); err != nil {
		return fmt.Errorf("upload transcript for %s: %w", sessionID, err)
	}
	return nil
}

func SafeObjectKey(parts ...string) string {
	safeParts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "\\", "/")
		part = strings.ReplaceAll(part, "..", "_")
		part = strings.Trim(part, "/")
		part = strings.ReplaceAll(part, " ", "_")
		if part != "" {
			safeParts = append(safeParts, part)
		}
	}
	return strings.Join(safeParts, "/")
}
