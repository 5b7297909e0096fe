// Package scanner implements C2: filesystem scanning with ignore-file
// awareness, content fingerprinting, and the chunking strategies that turn
// scanned files and crawled pages into located content chunks.
package scanner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// maxSniffBytes bounds the binary/encoding sniff to the file's first 8 KiB
// (spec §4.3).
const maxSniffBytes = 8 * 1024

// FileError records a per-file failure that never aborts the walk.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// ScanResult is the outcome of one directory walk.
type ScanResult struct {
	Files  []types.ScannedFile
	Errors []FileError
}

// ScanDirectory walks root, filtering by allow-listed extensions and max
// file size, skipping binary files and files matched by nested ignore
// files when limits.RespectIgnoreFiles is set. Non-UTF-8 text files are
// recorded as per-file errors; the walk continues (spec §4.3).
func ScanDirectory(root string, limits config.ScanLimits) (ScanResult, error) {
	var result ScanResult
	matcher := newIgnoreMatcher(root, limits.RespectIgnoreFiles)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Err: err})
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if matcher.ignoredDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.ignored(rel) {
			return nil
		}
		if !extensionAllowed(path, limits.AllowedExtensions) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: rel, Err: err})
			return nil
		}
		if limits.MaxFileSizeBytes > 0 && info.Size() > limits.MaxFileSizeBytes {
			return nil
		}

		sf, isBinary, encErr := scanOneFile(path, rel, info)
		if encErr != nil {
			logging.Scanner.Warn("encoding error for %s: %v", rel, encErr)
			result.Errors = append(result.Errors, FileError{Path: rel, Err: encErr})
			return nil
		}
		if isBinary {
			return nil
		}
		result.Files = append(result.Files, sf)
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func extensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// scanOneFile reads path, fingerprints it, and classifies it as binary or
// non-UTF-8 text.
func scanOneFile(path, rel string, info fs.FileInfo) (types.ScannedFile, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ScannedFile{}, false, err
	}

	sniff := data
	if len(sniff) > maxSniffBytes {
		sniff = sniff[:maxSniffBytes]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return types.ScannedFile{}, true, nil
	}
	if !utf8.Valid(data) {
		return types.ScannedFile{}, false, &types.Error{Code: types.CodeInvalidArgument, Message: "file is not valid UTF-8"}
	}

	sum := sha256.Sum256(data)
	lineCount := strings.Count(string(data), "\n") + 1

	return types.ScannedFile{
		Path:    path,
		RelPath: filepath.ToSlash(rel),
		Fingerprint: types.FileFingerprint{
			ContentHash: hex.EncodeToString(sum[:]),
			ModifiedAt:  info.ModTime(),
			SizeBytes:   info.Size(),
		},
		LineCount: lineCount,
	}, false, nil
}

// Fingerprint computes the FileFingerprint for a single path without the
// rest of the scan pipeline; used by incremental rescans.
func Fingerprint(path string) (types.FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileFingerprint{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.FileFingerprint{}, err
	}
	sum := sha256.Sum256(data)
	return types.FileFingerprint{
		ContentHash: hex.EncodeToString(sum[:]),
		ModifiedAt:  info.ModTime(),
		SizeBytes:   info.Size(),
	}, nil
}
