// Package backup exports notes to an S3 bucket and restores them back. Each
// note becomes one JSON document under notes/, and its clips are uploaded
// under clips/ keyed by file name.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/store"
)

const (
	notePrefix = "notes/"
	clipPrefix = "clips/"
)

// ObjectClient is the slice of the S3 API the backup uses.
type ObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// NewS3Client loads shared AWS config for the given profile and region.
func NewS3Client(ctx context.Context, profile, region string) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// noteDocument is the serialized form of one note and its clip metadata.
type noteDocument struct {
	Note   domain.Note         `json:"note"`
	Blocks []domain.AudioBlock `json:"blocks"`
}

// Service copies notes between the local store and a bucket.
type Service struct {
	store  *store.Store
	client ObjectClient
	bucket string
	logger *slog.Logger
}

// New creates a backup service over the store and bucket.
func New(st *store.Store, client ObjectClient, bucket string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, client: client, bucket: bucket, logger: logger}
}

// Export uploads every note, archived ones included, plus its clip files.
// It returns the number of notes uploaded.
func (s *Service) Export(ctx context.Context) (int, error) {
	notes, err := s.store.ListNotes(ctx, store.ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("list notes: %w", err)
	}

	for _, note := range notes {
		blocks, err := s.store.GetAudioBlocks(ctx, note.ID)
		if err != nil {
			return 0, fmt.Errorf("load blocks for note %d: %w", note.ID, err)
		}
		if err := s.exportNote(ctx, note, blocks); err != nil {
			return 0, err
		}
	}
	s.logger.Info("backup complete", "notes", len(notes), "bucket", s.bucket)
	return len(notes), nil
}

func (s *Service) exportNote(ctx context.Context, note domain.Note, blocks []domain.AudioBlock) error {
	doc, err := json.MarshalIndent(noteDocument{Note: note, Blocks: blocks}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal note %d: %w", note.ID, err)
	}

	key := fmt.Sprintf("%s%d.json", notePrefix, note.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	for _, b := range blocks {
		if err := s.uploadClip(ctx, b.FilePath); err != nil {
			s.logger.Warn("skip clip upload", "path", b.FilePath, "err", err)
		}
	}
	return nil
}

func (s *Service) uploadClip(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	key := clipPrefix + filepath.Base(filePath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Restore downloads every note document and writes it back under its original
// note id, replacing any local row with that id, and pulls its clips into
// clipDir. Block ids are preserved so placeholders in the restored content
// keep resolving, and re-running a restore is idempotent rather than
// duplicating notes. It returns the number of notes restored.
func (s *Service) Restore(ctx context.Context, clipDir string) (int, error) {
	keys, err := s.listNoteKeys(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, key := range keys {
		if err := s.restoreNote(ctx, key, clipDir); err != nil {
			return restored, err
		}
		restored++
	}
	s.logger.Info("restore complete", "notes", restored, "bucket", s.bucket)
	return restored, nil
}

func (s *Service) listNoteKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(notePrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list bucket objects: %w", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".json") {
				keys = append(keys, *obj.Key)
			}
		}
		if out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func (s *Service) restoreNote(ctx context.Context, key, clipDir string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	var doc noteDocument
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}

	blocks := make([]domain.AudioBlock, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		localPath, err := s.downloadClip(ctx, b.FilePath, clipDir)
		if err != nil {
			s.logger.Warn("skip clip download", "path", b.FilePath, "err", err)
			localPath = b.FilePath
		}
		b.FilePath = localPath
		blocks = append(blocks, b)
	}

	note := doc.Note
	if err := s.store.RestoreNote(ctx, &note, blocks); err != nil {
		return fmt.Errorf("restore note from %s: %w", key, err)
	}
	return nil
}

func (s *Service) downloadClip(ctx context.Context, originalPath, clipDir string) (string, error) {
	key := clipPrefix + filepath.Base(originalPath)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(clipDir, 0755); err != nil {
		return "", fmt.Errorf("create clip dir: %w", err)
	}
	localPath := filepath.Join(clipDir, path.Base(key))
	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	defer f.Close()
	if _, err := f.ReadFrom(out.Body); err != nil {
		return "", fmt.Errorf("write clip file: %w", err)
	}
	return localPath, nil
}
