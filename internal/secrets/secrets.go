// Package secrets resolves credential values in configuration. A value may be
// a literal, contain ${VAR} or ${VAR:-default} references, or point at a file
// with the file: prefix (Docker and Kubernetes mounted secrets).
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/syncbridge/internal/errors"
)

const (
	// FilePrefix marks a value that names a secret file.
	FilePrefix = "file:"

	// maxSecretFileSize limits secret file reads. Secrets are tokens and
	// passwords, not documents.
	maxSecretFileSize = 64 * 1024
)

// ExpandString expands ${VAR} and ${VAR:-default} references. Referencing an
// unset variable without a default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file and trims trailing newlines. It reports whether
// the file is readable by group or others so callers can warn about it.
func ReadFile(path string) (secret string, permissive bool, err error) {
	if path == "" {
		return "", false, configError("secret file path is empty")
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, configError("secret file not found: %s", clean)
		}
		return "", false, errors.New(fmt.Errorf("failed to stat secret file %s: %w", clean, err)).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", false, configError("secret path is not a regular file: %s", clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", false, configError("secret file too large (max %d bytes): %s", maxSecretFileSize, clean)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", false, errors.New(fmt.Errorf("failed to read secret file %s: %w", clean, err)).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}

	secret = strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", false, configError("secret file is empty: %s", clean)
	}
	return secret, info.Mode().Perm()&0o077 != 0, nil
}

// Resolution is the outcome of resolving one value.
type Resolution struct {
	Value string
	// File is the secret file the value came from, if any.
	File string
	// Permissive is set when File is readable by group or others.
	Permissive bool
}

// Resolve returns the effective value of a configured credential.
func Resolve(value string) (Resolution, error) {
	if path, ok := strings.CutPrefix(value, FilePrefix); ok {
		secret, permissive, err := ReadFile(path)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Value: secret, File: filepath.Clean(path), Permissive: permissive}, nil
	}

	expanded, err := ExpandString(value)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Value: expanded}, nil
}

func configError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}
