package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalStore keeps objects on the local filesystem under a base directory
// and signs download URLs with an HMAC secret.
type LocalStore struct {
	baseDir string
	secret  []byte
	urlTTL  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewLocalStore(baseDir, signingSecret string, urlTTL time.Duration, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{
		baseDir: baseDir,
		secret:  []byte(signingSecret),
		urlTTL:  urlTTL,
		now:     time.Now,
		logger:  logger,
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write object: %w", err)
	}
	return f.Close()
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// SignDownloadURL produces "/api/files/<key>?expires=...&sig=..." where the
// signature covers both the key and the expiry.
func (s *LocalStore) SignDownloadURL(key string) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	expires := strconv.FormatInt(s.now().Add(s.urlTTL).Unix(), 10)
	sig := s.sign(key, expires)
	return fmt.Sprintf("/api/files/%s?expires=%s&sig=%s", url.PathEscape(key), expires, sig), nil
}

func (s *LocalStore) VerifySignature(key, expires, signature string) error {
	ts, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if s.now().Unix() > ts {
		return ErrBadSignature
	}
	expected := s.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

func (s *LocalStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a key to a filesystem path and rejects anything that would
// escape the base directory.
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve key: %w", err)
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return path, nil
}
