package logsource

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"treegraph/logger"
	"treegraph/models"
)

// maxLineBytes bounds a single log line; insertion lines can carry long
// referee lists.
const maxLineBytes = 4 * 1024 * 1024

// logPathPrefix precedes the timestamp when lines were collected with their
// originating file path (grep-style aggregation across hosts).
const logPathPrefix = "/conflux.log:"

var logTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
}

// parseValue extracts the substring between the first occurrence of prefix
// and the following occurrence of suffix. An empty prefix anchors at the
// start of the line; an empty suffix extends to its end.
func parseValue(line, prefix, suffix string) (string, bool) {
	start := 0
	if prefix != "" {
		i := strings.Index(line, prefix)
		if i < 0 {
			return "", false
		}
		start = i + len(prefix)
	}
	end := len(line)
	if suffix != "" {
		j := strings.Index(line[start:], suffix)
		if j < 0 {
			return "", false
		}
		end = start + j
	}
	return line[start:end], true
}

func parseUintValue(line, prefix, suffix string) (uint64, bool) {
	raw, ok := parseValue(line, prefix, suffix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseLogTimestamp reads the local observation time from the head of the
// line, in epoch seconds.
func parseLogTimestamp(line string) (float64, bool) {
	rest := line
	if i := strings.Index(line, logPathPrefix); i >= 0 {
		rest = line[i+len(logPathPrefix):]
	}
	raw, ok := parseValue(rest, "", " ")
	if !ok || raw == "" {
		return 0, false
	}
	for _, layout := range logTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.UnixNano()) / float64(time.Second), true
		}
	}
	return 0, false
}

// ParseLine turns one new-block insertion line into a Block. It returns
// false for any line that does not carry the full field set in the expected
// encoding; such lines are noise, not errors.
func ParseLine(line string) (*models.Block, bool) {
	logTimestamp, ok := parseLogTimestamp(line)
	if !ok {
		return nil, false
	}

	rawHash, ok := parseValue(line, "hash: Some(", ")")
	if !ok {
		return nil, false
	}
	hash, err := models.ParseHash(rawHash)
	if err != nil {
		return nil, false
	}

	rawParent, ok := parseValue(line, "parent_hash: ", ",")
	if !ok {
		return nil, false
	}
	// The genesis record carries the all-zero parent, which parses like any
	// other hash and is recognized as rootness later, at link resolution.
	parent, err := models.ParseHash(rawParent)
	if err != nil {
		return nil, false
	}

	height, ok := parseUintValue(line, "height: ", ",")
	if !ok {
		return nil, false
	}
	timestamp, ok := parseUintValue(line, "timestamp: ", ",")
	if !ok {
		return nil, false
	}
	txCount, ok := parseUintValue(line, "tx_count=", ",")
	if !ok {
		return nil, false
	}
	blockSize, ok := parseUintValue(line, "block_size=", "")
	if !ok {
		return nil, false
	}

	rawReferees, ok := parseValue(line, "referee_hashes: [", "]")
	if !ok {
		return nil, false
	}
	var referees []models.Hash
	seen := make(map[models.Hash]struct{})
	for _, item := range strings.Split(rawReferees, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ref, err := models.ParseHash(item)
		if err != nil {
			return nil, false
		}
		// Duplicate and self references make the record invalid.
		if ref == hash {
			return nil, false
		}
		if _, dup := seen[ref]; dup {
			return nil, false
		}
		seen[ref] = struct{}{}
		referees = append(referees, ref)
	}

	return &models.Block{
		Height:        height,
		Hash:          hash,
		ParentHash:    parent,
		RefereeHashes: referees,
		Timestamp:     timestamp,
		LogTimestamp:  logTimestamp,
		TxCount:       txCount,
		BlockSize:     blockSize,
	}, true
}

// ParseFile reads a new-blocks artifact and returns its block records in
// file order. Lines without the insertion marker or with an incomplete
// field set are skipped silently.
func ParseFile(path string) ([]*models.Block, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer file.Close()

	var blocks []*models.Block
	skipped := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, NewBlockMarker) {
			skipped++
			continue
		}
		block, ok := ParseLine(line)
		if !ok {
			skipped++
			continue
		}
		blocks = append(blocks, block)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan artifact %s: %w", path, err)
	}

	logger.Logger.Info("Parsed block records",
		zap.String("artifact", path),
		zap.Int("accepted", len(blocks)),
		zap.Int("skipped", skipped))

	return blocks, nil
}
