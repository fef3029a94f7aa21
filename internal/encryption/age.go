package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"sag-go/internal/config"
	"sag-go/internal/sag"
)

var (
	// ErrWrongPassphrase reports a passphrase that does not open the archive key.
	ErrWrongPassphrase = errors.New("incorrect archive passphrase")

	// ErrNotAgeArchive reports vault data that is not an age-encrypted archive.
	ErrNotAgeArchive = errors.New("stored archive is not age-encrypted")
)

// AgeEncryptor seals containers before they are pushed to a vault.
//
// The public key file lists one or more age recipients, one per line, and
// every archive is readable by each of them. Adding a line is how a second
// machine's key is granted access to future pushes. The private key file
// holds this machine's identity, sealed with a scrypt passphrase, and is only
// needed to pull.
type AgeEncryptor struct {
	recipientsPath string
	identityPath   string
}

var _ sag.ArchiveEncryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientsPath: cfg.PublicKeyPath,
		identityPath:   cfg.PrivateKeyPath,
	}
}

// Setup creates this machine's archive key. The sealed identity is written
// first and the recipient last, so an interrupted setup never looks
// configured. Existing keys are never replaced.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if e.IsConfigured() {
		return fmt.Errorf("archive keys already exist at %s", e.identityPath)
	}
	if passphrase == "" {
		return errors.New("archive passphrase must not be empty")
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating archive key: %w", err)
	}

	sealed, err := sealIdentity(identity, passphrase)
	if err != nil {
		return err
	}
	if err := writeKeyFile(e.identityPath, sealed, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	line := "# sag archive recipient\n" + identity.Recipient().String() + "\n"
	if err := writeKeyFile(e.recipientsPath, []byte(line), 0644); err != nil {
		os.Remove(e.identityPath)
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// Encrypt seals one container to every recipient in the public key file.
// Unlocking is not required to push.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipients, err := e.recipients()
	if err != nil {
		return err
	}

	sealed, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("starting archive encryption: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting archive: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("finishing archive encryption: %w", err)
	}
	return nil
}

// Unlock opens the sealed identity. A passphrase that does not match is
// reported as ErrWrongPassphrase.
func (e *AgeEncryptor) Unlock(passphrase string) (sag.DecryptionContext, error) {
	sealed, err := os.ReadFile(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	identity, err := openIdentity(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	return &AgeDecryptionContext{identity: identity}, nil
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, p := range []string{e.recipientsPath, e.identityPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (e *AgeEncryptor) Enabled() bool {
	return true
}

// recipients parses the public key file. Blank lines and # comments are
// skipped.
func (e *AgeEncryptor) recipients() ([]age.Recipient, error) {
	data, err := os.ReadFile(e.recipientsPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	var out []age.Recipient
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := age.ParseX25519Recipient(line)
		if err != nil {
			return nil, fmt.Errorf("public key line %d: %w", n, err)
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no recipients in %s", e.recipientsPath)
	}
	return out, nil
}

func sealIdentity(identity *age.X25519Identity, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	return buf.Bytes(), nil
}

func openIdentity(sealed []byte, passphrase string) (age.Identity, error) {
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), scrypt)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(plain))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("private key file holds no identity")
	}
	return identities[0], nil
}

// writeKeyFile creates path with mode through a temp file in the same
// directory. It fails if path already exists.
func writeKeyFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sag-key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmp.Name(), path)
}

// AgeDecryptionContext holds an unlocked identity for the length of a pull.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ sag.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt opens one archive pulled from a vault. Data without an age header
// is reported as ErrNotAgeArchive.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return fmt.Errorf("archive was not sealed for this key: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrNotAgeArchive, err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting archive: %w", err)
	}
	return nil
}
