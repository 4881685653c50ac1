package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	ErrNotConfigured      = errors.New("avatar storage not configured")
	ErrUnsupportedContent = errors.New("unsupported avatar content type")
)

var avatarExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	URLTTL        time.Duration
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// AvatarUpload is handed to the client: PUT the file to UploadURL, then save
// PublicURL as the profile image.
type AvatarUpload struct {
	UploadURL string    `json:"uploadUrl"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	PublicURL string    `json:"publicUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Avatars struct {
	presign presigner
	cfg     S3Config
	now     func() time.Time
}

// NewAvatars builds an S3 (or MinIO, via Endpoint) presigner. An empty
// bucket returns (nil, nil) so callers can treat uploads as disabled.
func NewAvatars(ctx context.Context, cfg S3Config) (*Avatars, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newAvatars(s3.NewPresignClient(client), cfg), nil
}

func newAvatars(p presigner, cfg S3Config) *Avatars {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	return &Avatars{presign: p, cfg: cfg, now: time.Now}
}

func (a *Avatars) PresignAvatar(ctx context.Context, userID, contentType string) (AvatarUpload, error) {
	if a == nil || a.presign == nil {
		return AvatarUpload{}, ErrNotConfigured
	}

	ext, ok := avatarExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return AvatarUpload{}, ErrUnsupportedContent
	}

	key := fmt.Sprintf("avatars/%s/%s.%s", userID, uuid.NewString(), ext)

	req, err := a.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(a.cfg.URLTTL))
	if err != nil {
		return AvatarUpload{}, fmt.Errorf("presign avatar: %w", err)
	}

	return AvatarUpload{
		UploadURL: req.URL,
		Method:    req.Method,
		Key:       key,
		PublicURL: a.publicURL(key),
		ExpiresAt: a.now().UTC().Add(a.cfg.URLTTL),
	}, nil
}

func (a *Avatars) publicURL(key string) string {
	base := strings.TrimRight(a.cfg.PublicBaseURL, "/")
	if base == "" {
		if a.cfg.Endpoint != "" {
			base = strings.TrimRight(a.cfg.Endpoint, "/") + "/" + a.cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", a.cfg.Bucket, a.cfg.Region)
		}
	}
	return base + "/" + key
}
