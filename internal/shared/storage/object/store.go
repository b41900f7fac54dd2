package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"financial-reporter/internal/shared/util"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Delete(ctx context.Context, storageKey string) error
}

// Presigner is implemented by stores that can hand out time-limited direct download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, storageKey string, ttl time.Duration) (string, error)
}

// NewKey builds the storage key for an upload: <sha256(user)>/<unix-millis>_<rand>_<name>.
func NewKey(userID, fileName string, now time.Time) (string, error) {
	name, err := util.SafeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return path.Join(util.UserPrefix(userID), fmt.Sprintf("%d_%s_%s", now.UnixMilli(), suffix, name)), nil
}
