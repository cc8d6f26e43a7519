// Package keyring provides secure storage for the secrets referenced from the
// router configuration. It uses the system keyring when available, falling
// back to an encrypted local file on headless systems without a secret service.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/travel-router/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "travel-router"
	// RefPrefix marks a config value that names a stored secret.
	RefPrefix = "keyring:"
)

// Common errors returned by keyring operations.
var (
	ErrNotFound = common.ErrSecretNotFound
	ErrEmpty    = errors.New("secret name and value cannot be empty")
)

// Storage backend state
var (
	initOnce        sync.Once
	useLocalStorage bool
	localStoreMu    sync.RWMutex
	localStore      map[string]string
	localStoreFile  string
	encryptionKey   []byte
)

func initStorage() {
	initOnce.Do(func() {
		testKey := "travel-router-test-init"
		if err := keyring.Set(serviceName, testKey, "test"); err == nil {
			keyring.Delete(serviceName, testKey)
			useLocalStorage = false
			return
		}
		common.LogDebug("System keyring unavailable, using encrypted file")
		initLocalStorage(defaultLocalPath())
	})
}

// UseFile forces the encrypted file backend at path.
func UseFile(path string) {
	initOnce.Do(func() {})
	initLocalStorage(path)
}

func defaultLocalPath() string {
	if common.IsRoot() {
		return filepath.Join(filepath.Dir(common.SystemConfigPath), common.CredentialsFileName)
	}
	configDir, err := common.GetConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), common.ConfigDirName, common.CredentialsFileName)
	}
	return filepath.Join(configDir, common.CredentialsFileName)
}

func initLocalStorage(path string) {
	localStoreMu.Lock()
	defer localStoreMu.Unlock()

	useLocalStorage = true
	localStoreFile = path
	os.MkdirAll(filepath.Dir(path), 0700)

	// Key bound to this machine and user.
	hostname, _ := os.Hostname()
	secret := []byte(fmt.Sprintf("%s-%s-%d", hostname, getMachineID(), os.Getuid()))
	kdf := hkdf.New(sha256.New, secret, []byte(serviceName), []byte("secret-file-v1"))
	encryptionKey = make([]byte, 32)
	if _, err := io.ReadFull(kdf, encryptionKey); err != nil {
		sum := sha256.Sum256(secret)
		encryptionKey = sum[:]
	}

	localStore = make(map[string]string)
	loadLocalStoreLocked()
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

func loadLocalStoreLocked() {
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		return
	}

	decrypted, err := decrypt(data)
	if err != nil {
		common.LogWarn("Could not decrypt %s: %v", localStoreFile, err)
		return
	}

	json.Unmarshal(decrypted, &localStore)
}

func saveLocalStore() error {
	localStoreMu.RLock()
	data, err := json.Marshal(localStore)
	localStoreMu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(localStoreFile, encrypted, 0600)
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Store saves a named secret.
func Store(name, value string) error {
	if name == "" || value == "" {
		return ErrEmpty
	}
	initStorage()

	if !useLocalStorage {
		if err := keyring.Set(serviceName, name, value); err == nil {
			return nil
		}
		initLocalStorage(defaultLocalPath())
	}

	localStoreMu.Lock()
	localStore[name] = value
	localStoreMu.Unlock()
	return saveLocalStore()
}

// Get retrieves a named secret.
func Get(name string) (string, error) {
	if name == "" {
		return "", ErrEmpty
	}
	initStorage()

	if !useLocalStorage {
		value, err := keyring.Get(serviceName, name)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
	}

	localStoreMu.RLock()
	value, exists := localStore[name]
	localStoreMu.RUnlock()
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

// Delete removes a named secret.
func Delete(name string) error {
	if name == "" {
		return ErrEmpty
	}
	initStorage()

	if !useLocalStorage {
		keyring.Delete(serviceName, name)
		return nil
	}

	localStoreMu.Lock()
	delete(localStore, name)
	localStoreMu.Unlock()
	return saveLocalStore()
}

// IsRef reports whether a config value refers to a stored secret.
func IsRef(value string) bool {
	return strings.HasPrefix(value, RefPrefix)
}

// Resolve returns value itself, or the stored secret when value is a
// "keyring:<name>" reference.
func Resolve(value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	return Get(strings.TrimPrefix(value, RefPrefix))
}
