package logsource

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"treegraph/logger"
)

var (
	// ErrAmbiguousInput means a directory holds more than one candidate log.
	ErrAmbiguousInput = errors.New("multiple candidate log files")
	// ErrNotFound means no candidate log artifact exists at the given path.
	ErrNotFound = errors.New("no candidate log file")
)

const (
	// NewBlockMarker identifies sync-graph insertion lines in a raw node log.
	NewBlockMarker = "new block inserted into graph"
	// ArtifactSuffix names the pre-filtered new-blocks artifact derived from
	// a raw log.
	ArtifactSuffix = ".new_blocks"

	rawLogSuffix = ".log"
)

// Resolve deterministically picks the one new-blocks artifact for path,
// deriving it from a raw node log when only that exists. path may be the
// artifact itself, a raw log, or a directory containing exactly one of
// either kind.
func Resolve(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		switch {
		case strings.HasSuffix(path, ArtifactSuffix):
			return path, nil
		case strings.HasSuffix(path, rawLogSuffix):
			return deriveArtifact(path)
		default:
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read dir %s: %w", path, err)
	}

	var artifacts, rawLogs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ArtifactSuffix):
			artifacts = append(artifacts, filepath.Join(path, name))
		case strings.HasSuffix(name, rawLogSuffix):
			rawLogs = append(rawLogs, filepath.Join(path, name))
		}
	}

	switch {
	case len(artifacts) > 1:
		return "", fmt.Errorf("%s: %w: %d new-blocks artifacts", path, ErrAmbiguousInput, len(artifacts))
	case len(artifacts) == 1:
		return artifacts[0], nil
	case len(rawLogs) > 1:
		return "", fmt.Errorf("%s: %w: %d raw node logs", path, ErrAmbiguousInput, len(rawLogs))
	case len(rawLogs) == 1:
		return deriveArtifact(rawLogs[0])
	default:
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
}

// deriveArtifact filters the raw log down to its new-block insertion lines
// and writes them to a sibling artifact file, overwriting any stale copy.
func deriveArtifact(logPath string) (string, error) {
	in, err := os.Open(logPath)
	if err != nil {
		return "", fmt.Errorf("open raw log %s: %w", logPath, err)
	}
	defer in.Close()

	artifactPath := logPath + ArtifactSuffix
	out, err := os.Create(artifactPath)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", artifactPath, err)
	}

	writer := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	kept := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, NewBlockMarker) {
			continue
		}
		writer.WriteString(line)
		writer.WriteByte('\n')
		kept++
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return "", fmt.Errorf("scan raw log %s: %w", logPath, err)
	}
	if err := writer.Flush(); err != nil {
		out.Close()
		return "", fmt.Errorf("write artifact %s: %w", artifactPath, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", artifactPath, err)
	}

	logger.Logger.Info("Derived new-blocks artifact",
		zap.String("raw_log", logPath),
		zap.String("artifact", artifactPath),
		zap.Int("lines", kept))

	return artifactPath, nil
}
