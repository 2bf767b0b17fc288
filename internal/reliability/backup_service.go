package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/weihanlu/investrack/internal/database"
)

const backupPrefix = "investrack-backup-"

// BackupService archives the local database and uploads it to object
// storage. Postgres deployments are expected to use managed snapshots;
// this path covers the SQLite file.
type BackupService struct {
	db            *database.DB
	s3            *S3Client
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

// BackupMetadata travels inside each archive next to the database file.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string    `json:"checksum"`
}

// NewBackupService creates a backup service.
func NewBackupService(db *database.DB, s3 *S3Client, dataDir string, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		s3:            s3,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup snapshots the database into a tar.gz archive with
// a checksum manifest and uploads it, then prunes expired backups.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	if s.db.Driver() != database.DriverSQLite {
		s.log.Info().Msg("Backup skipped: non-SQLite driver")
		return nil
	}

	started := time.Now()
	s.log.Info().Msg("Starting backup")

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "investrack.db")
	if err := s.snapshotDatabase(snapshotPath); err != nil {
		return err
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := fileChecksum(snapshotPath)
	if err != nil {
		return err
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Database:  s.db.Name(),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}

	archiveName := backupPrefix + metadata.Timestamp.Format("20060102-150405") + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := writeArchive(archivePath, snapshotPath, metadata); err != nil {
		return err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.s3.Upload(ctx, archiveName, archive); err != nil {
		return err
	}

	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", info.Size()).
		Dur("elapsed", time.Since(started)).
		Msg("Backup uploaded")

	return s.pruneExpired(ctx)
}

// snapshotDatabase copies the live database with VACUUM INTO, which takes
// a consistent snapshot without blocking writers.
func (s *BackupService) snapshotDatabase(destination string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destination); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// pruneExpired deletes backups older than the retention window.
func (s *BackupService) pruneExpired(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}

	objects, err := s.s3.List(ctx, backupPrefix)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.s3.Delete(ctx, obj.Key); err != nil {
			s.log.Error().Err(err).Str("key", obj.Key).Msg("Failed to prune backup")
			continue
		}
		s.log.Info().Str("key", obj.Key).Msg("Pruned expired backup")
	}
	return nil
}

// ListBackups returns the stored backups, for the system API.
func (s *BackupService) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	return s.s3.List(ctx, backupPrefix)
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// writeArchive produces a tar.gz containing the database snapshot and a
// metadata.json manifest.
func writeArchive(archivePath, snapshotPath string, metadata BackupMetadata) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	manifest, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "metadata.json",
		Mode:    0o644,
		Size:    int64(len(manifest)),
		ModTime: metadata.Timestamp,
	}); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}
	if _, err := tw.Write(manifest); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	snapshot, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshot.Close()

	info, err := snapshot.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    filepath.Base(snapshotPath),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if _, err := io.Copy(tw, snapshot); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}
