package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

var (
	ErrDisabled   = errors.New("backup: object storage not configured")
	ErrInProgress = errors.New("backup: another backup is running")
	ErrNotFound   = errors.New("backup: not found")
)

// objectStore is the subset of the S3 client the manager uses.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage settings. Backups are disabled unless
// Bucket, AccessKey, SecretKey and Passphrase are all set.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
}

func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Manager snapshots the database, encrypts it and uploads it to object storage.
type Manager struct {
	db     *sql.DB
	store  *store.BackupStore
	client objectStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	run    sync.Mutex // held for the duration of a backup
	mu     sync.RWMutex
	status Status
}

func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		db:     db,
		store:  bs,
		cfg:    cfg,
		logger: logger.With("component", "backup"),
		now:    time.Now,
		status: Status{State: StateDisabled},
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
}

// Run takes a consistent snapshot with VACUUM INTO, seals it and uploads it.
// The returned record reflects the final state; on failure it is marked failed
// and the error is returned alongside it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	if !m.run.TryLock() {
		return nil, ErrInProgress
	}
	defer m.run.Unlock()

	started := m.now().UTC()
	filename := fmt.Sprintf("chorequest-%s.db.enc", started.Format("2006-01-02T150405Z"))
	key := path.Join(m.cfg.Prefix, filename)

	record, err := m.store.Create(filename, key, started)
	if err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateRunning})

	size, err := m.upload(ctx, record)
	if err != nil {
		m.logger.Error("backup failed", "backup_id", record.ID, "error", err)
		if serr := m.store.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); serr != nil {
			m.logger.Error("record backup failure", "backup_id", record.ID, "error", serr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		failed, _ := m.store.GetByID(record.ID)
		return failed, err
	}

	done := m.now().UTC()
	if err := m.store.MarkCompleted(record.ID, size, done); err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateIdle, LastBackup: &done})
	m.logger.Info("backup uploaded", "backup_id", record.ID, "key", key, "bytes", size)
	return m.store.GetByID(record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup) (int64, error) {
	if err := m.store.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	sealed, err := Seal(snapshot, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	}); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	return int64(len(sealed)), nil
}

// snapshot writes a compacted copy of the live database to a temp file and reads it back.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "chorequest-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Download streams a stored snapshot, still encrypted.
func (m *Manager) Download(ctx context.Context, id int64) (io.ReadCloser, *model.Backup, error) {
	if m.client == nil {
		return nil, nil, ErrDisabled
	}
	record, err := m.store.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if !record.Available() {
		return nil, nil, ErrNotFound
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download: %w", err)
	}
	return out.Body, record, nil
}

// Prune deletes backups started more than retention ago, records first, then
// objects. Object deletion failures are logged and skipped.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if m.client == nil {
		return 0, ErrDisabled
	}
	keys, err := m.store.DeleteOlderThan(m.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("pruned backups", "count", len(keys))
	}
	return len(keys), nil
}

// Scheduled is the cron job body: back up, then prune.
func (m *Manager) Scheduled(retention time.Duration) func() {
	return func() {
		ctx := context.Background()
		if _, err := m.Run(ctx); err != nil {
			m.logger.Error("scheduled backup", "error", err)
			return
		}
		if _, err := m.Prune(ctx, retention); err != nil {
			m.logger.Error("prune backups", "error", err)
		}
	}
}
