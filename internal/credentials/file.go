package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// FileStore keeps the bundle in a local file. With a passphrase the file is
// an armored age ciphertext (scrypt recipient); without one it is plain JSON.
type FileStore struct {
	Path       string
	Passphrase string
	// WorkFactor is the scrypt log2(N) used when encrypting. Zero keeps the
	// age default.
	WorkFactor int
}

func NewFileStore(path, passphrase string) *FileStore {
	if passphrase == "" {
		log.Printf("[WARN] credentials: %s will hold session cookies in plaintext; set a passphrase to encrypt it", path)
	}
	return &FileStore{Path: path, Passphrase: passphrase}
}

func (s *FileStore) Load(ctx context.Context) (Credentials, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNotFound
	}

	encrypted := bytes.HasPrefix(bytes.TrimSpace(raw), []byte(armor.Header))
	if !encrypted {
		return decode(raw)
	}
	if s.Passphrase == "" {
		return nil, fmt.Errorf("%s is encrypted and no passphrase is configured", s.Path)
	}

	identity, err := age.NewScryptIdentity(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(raw)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", s.Path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read decrypted %s: %w", s.Path, err)
	}
	return decode(plaintext)
}

func (s *FileStore) Save(ctx context.Context, creds Credentials) error {
	plaintext, err := encode(creds)
	if err != nil {
		return err
	}

	data := plaintext
	if s.Passphrase != "" {
		data, err = s.seal(plaintext)
		if err != nil {
			return err
		}
	}
	return writeFileAtomic(s.Path, data, 0o600)
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileStore) seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("scrypt recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}

	var buf bytes.Buffer
	armored := armor.NewWriter(&buf)
	writer, err := age.Encrypt(armored, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
