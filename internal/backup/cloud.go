package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/travelogue/internal/blob"
	"github.com/pkordes/travelogue/internal/domain"
	"github.com/pkordes/travelogue/internal/metrics"
)

// keyTimeLayout sorts lexically in time order.
const keyTimeLayout = "20060102T150405.000000000Z"

// CloudBackup describes one stored backup of a user's data.
type CloudBackup struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// ErrNotConfigured is returned by the cloud backup operations when the
// Service has no blob store.
var ErrNotConfigured = errors.New("backup: cloud backups are not configured")

func userPrefix(userID string) string {
	return "backups/" + url.PathEscape(userID) + "/"
}

// CreateCloudBackup exports all of userID's data into a new cloud backup.
func (s *Service) CreateCloudBackup(ctx context.Context, userID string) (_ CloudBackup, err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("cloud_create", metrics.Result(err)).Inc() }()

	if s.blobs == nil {
		return CloudBackup{}, fmt.Errorf("backup.Service.CreateCloudBackup: %w", ErrNotConfigured)
	}
	pkg, err := s.ExportAll(ctx, userID)
	if err != nil {
		return CloudBackup{}, fmt.Errorf("backup.Service.CreateCloudBackup: %w", err)
	}
	body, err := json.Marshal(pkg)
	if err != nil {
		return CloudBackup{}, fmt.Errorf("backup.Service.CreateCloudBackup: encode: %w", err)
	}

	created := s.now().UTC()
	id := created.Format(keyTimeLayout) + "-" + uuid.NewString() + ".json"
	if err := s.blobs.Put(ctx, userPrefix(userID)+id, bytes.NewReader(body), "application/json"); err != nil {
		return CloudBackup{}, fmt.Errorf("backup.Service.CreateCloudBackup: %w", err)
	}
	s.log.Info("backup: cloud backup created", "user_id", userID, "backup_id", id, "trips", len(pkg.Trips))
	return CloudBackup{ID: id, CreatedAt: created, Size: int64(len(body))}, nil
}

// ListCloudBackups returns userID's cloud backups, newest first.
func (s *Service) ListCloudBackups(ctx context.Context, userID string) ([]CloudBackup, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("backup.Service.ListCloudBackups: %w", ErrNotConfigured)
	}
	infos, err := s.blobs.List(ctx, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("backup.Service.ListCloudBackups: %w", err)
	}
	out := make([]CloudBackup, 0, len(infos))
	for _, info := range infos {
		id := path.Base(info.Key)
		b := CloudBackup{ID: id, CreatedAt: info.LastModified, Size: info.Size}
		if stamp, _, ok := strings.Cut(id, "-"); ok {
			if t, err := time.Parse(keyTimeLayout, stamp); err == nil {
				b.CreatedAt = t
			}
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// RestoreCloudBackup replaces userID's data with the contents of backup id.
// The backup is validated like any import before anything is cleared.
func (s *Service) RestoreCloudBackup(ctx context.Context, userID, id string) (err error) {
	defer func() { metrics.BackupOperations.WithLabelValues("cloud_restore", metrics.Result(err)).Inc() }()

	if s.blobs == nil {
		return fmt.Errorf("backup.Service.RestoreCloudBackup: %w", ErrNotConfigured)
	}
	if id == "" || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("backup.Service.RestoreCloudBackup %q: %w", id, domain.ErrNotFound)
	}
	rc, err := s.blobs.Get(ctx, userPrefix(userID)+id)
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("backup.Service.RestoreCloudBackup %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("backup.Service.RestoreCloudBackup: %w", err)
	}
	defer rc.Close()

	pkg, err := ParsePackage(rc)
	if err != nil {
		return fmt.Errorf("backup.Service.RestoreCloudBackup %s: %w", id, err)
	}
	if err := s.apply(ctx, userID, pkg); err != nil {
		return fmt.Errorf("backup.Service.RestoreCloudBackup: %w", err)
	}
	return nil
}
