package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dooshek/murmur/internal/logger"
)

// ErrConfigNotFound is returned when a configuration file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrProcessAlreadyRunning is returned when another murmur process is running
var ErrProcessAlreadyRunning = errors.New("murmur process is already running")

// FileOps defines operations on the murmur config directory
type FileOps interface {
	// GetConfigDir returns the full path to the murmur config directory
	GetConfigDir() string

	// GetRecordingsDir returns the directory archived session recordings go to
	GetRecordingsDir() string

	// GetStatsPath returns the path of the session statistics file
	GetStatsPath() string

	// SaveConfig saves data to a file in the config directory
	SaveConfig(filename string, data []byte) error

	// LoadConfig loads data from a file in the config directory
	LoadConfig(filename string) ([]byte, error)

	// EnsureDirectories creates necessary directories if they don't exist
	EnsureDirectories() error

	// SavePID saves the current process ID to a file
	SavePID() error

	// CheckPID returns ErrProcessAlreadyRunning if another instance is running
	CheckPID() error

	// CleanupPID removes the PID file
	CleanupPID() error
}

// DefaultFileOps implements FileOps rooted at a config directory
type DefaultFileOps struct {
	configDir string
}

// NewDefaultFileOps creates a DefaultFileOps rooted at ~/.config/murmur
func NewDefaultFileOps() (*DefaultFileOps, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return &DefaultFileOps{
		configDir: filepath.Join(homeDir, ".config", "murmur"),
	}, nil
}

// NewFileOpsAt creates a DefaultFileOps rooted at dir.
func NewFileOpsAt(dir string) *DefaultFileOps {
	return &DefaultFileOps{configDir: dir}
}

func (f *DefaultFileOps) GetConfigDir() string {
	return f.configDir
}

func (f *DefaultFileOps) GetRecordingsDir() string {
	return filepath.Join(f.configDir, "recordings")
}

func (f *DefaultFileOps) GetStatsPath() string {
	return filepath.Join(f.configDir, "stats.json")
}

func (f *DefaultFileOps) SaveConfig(filename string, data []byte) error {
	path := filepath.Join(f.configDir, filename)
	return os.WriteFile(path, data, 0o644)
}

func (f *DefaultFileOps) LoadConfig(filename string) ([]byte, error) {
	path := filepath.Join(f.configDir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrConfigNotFound
	}
	return os.ReadFile(path)
}

func (f *DefaultFileOps) EnsureDirectories() error {
	if err := os.MkdirAll(f.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.MkdirAll(f.GetRecordingsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	return nil
}

func (f *DefaultFileOps) getPIDFilePath() string {
	return filepath.Join(f.configDir, "murmur.pid")
}

func (f *DefaultFileOps) SavePID() error {
	return os.WriteFile(f.getPIDFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (f *DefaultFileOps) CheckPID() error {
	data, err := os.ReadFile(f.getPIDFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}
	if pid == os.Getpid() {
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// signal 0 only probes for existence
	if err := process.Signal(syscall.Signal(0)); err == nil {
		return ErrProcessAlreadyRunning
	}

	logger.Debug("Found stale PID file, will be overwritten")
	return nil
}

func (f *DefaultFileOps) CleanupPID() error {
	return os.Remove(f.getPIDFilePath())
}
