package analysis

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// SplitOptions controls how SplitSessionArchive writes per-session files.
type SplitOptions struct {
	// ArrayField is the JSON field name that contains the session array, when
	// the top-level JSON value is an object.
	//
	// If empty, SplitSessionArchive will try the first array-valued field and
	// treat it as the sessions array.
	ArrayField string

	// OverwriteExisting controls whether existing output files should be overwritten.
	// If false and a file already exists, SplitSessionArchive returns an error.
	OverwriteExisting bool

	// Pretty controls whether each output JSON file is indented for readability.
	Pretty bool

	// DirMode is used when creating output directories (defaults to 0o755).
	DirMode fs.FileMode

	// FileMode is used when creating output files (defaults to 0o644).
	FileMode fs.FileMode
}

// SplitResult contains basic stats from a split run.
type SplitResult struct {
	SessionsWritten int
	BytesWritten    int64
}

// SplitSessionArchive reads a chat-session export and writes one
// <id>.session.json file per session into outputDir.
//
// The input is expected to be either:
// - a top-level JSON array: [ { ...session... }, ... ]
// - a top-level JSON object containing an array field (e.g. { "sessions": [ ... ] })
//
// It uses a streaming decoder and never reads the full file into memory at once.
func SplitSessionArchive(ctx context.Context, inputPath, outputDir string, opts SplitOptions) (SplitResult, error) {
	if ctx == nil {
		return SplitResult{}, errors.New("SplitSessionArchive: ctx is nil")
	}
	if inputPath == "" {
		return SplitResult{}, errors.New("SplitSessionArchive: inputPath is empty")
	}
	if outputDir == "" {
		return SplitResult{}, errors.New("SplitSessionArchive: outputDir is empty")
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if err := os.MkdirAll(outputDir, opts.DirMode); err != nil {
		return SplitResult{}, fmt.Errorf("SplitSessionArchive: mkdir outputDir: %w", err)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return SplitResult{}, fmt.Errorf("SplitSessionArchive: open input: %w", err)
	}
	defer f.Close()

	// Exports are typically one huge line; use a larger buffer than default.
	dec := json.NewDecoder(bufio.NewReaderSize(f, 1<<20))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return SplitResult{}, fmt.Errorf("SplitSessionArchive: read first token: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return SplitResult{}, fmt.Errorf("SplitSessionArchive: expected JSON array/object, got %T", tok)
	}

	seen := make(map[string]int)
	var res SplitResult

	switch delim {
	case '[':
		if err := splitArrayFromOpen(ctx, dec, outputDir, opts, seen, &res); err != nil {
			return SplitResult{}, err
		}
		// Consume the closing ']'.
		if tok, err := dec.Token(); err != nil {
			return SplitResult{}, fmt.Errorf("SplitSessionArchive: read closing array token: %w", err)
		} else if d, ok := tok.(json.Delim); !ok || d != ']' {
			return SplitResult{}, fmt.Errorf("SplitSessionArchive: expected closing ']', got %v", tok)
		}
		return res, nil
	case '{':
		// Scan fields until we find the sessions array.
		foundArray := false
		for dec.More() {
			select {
			case <-ctx.Done():
				return SplitResult{}, ctx.Err()
			default:
			}

			keyTok, err := dec.Token()
			if err != nil {
				return SplitResult{}, fmt.Errorf("SplitSessionArchive: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return SplitResult{}, fmt.Errorf("SplitSessionArchive: expected string key, got %T", keyTok)
			}

			valTok, err := dec.Token()
			if err != nil {
				return SplitResult{}, fmt.Errorf("SplitSessionArchive: read value token for key %q: %w", key, err)
			}

			isTarget := opts.ArrayField != "" && key == opts.ArrayField
			if !isTarget && opts.ArrayField == "" && !foundArray {
				if d, ok := valTok.(json.Delim); ok && d == '[' {
					isTarget = true
				}
			}

			if isTarget {
				d, ok := valTok.(json.Delim)
				if !ok || d != '[' {
					return SplitResult{}, fmt.Errorf("SplitSessionArchive: key %q was chosen as array but value isn't an array", key)
				}
				foundArray = true
				if err := splitArrayFromOpen(ctx, dec, outputDir, opts, seen, &res); err != nil {
					return SplitResult{}, err
				}
				// Consume the closing ']'.
				if tok, err := dec.Token(); err != nil {
					return SplitResult{}, fmt.Errorf("SplitSessionArchive: read closing array token: %w", err)
				} else if d, ok := tok.(json.Delim); !ok || d != ']' {
					return SplitResult{}, fmt.Errorf("SplitSessionArchive: expected closing ']', got %v", tok)
				}
				continue
			}

			if err := skipValue(dec, valTok); err != nil {
				return SplitResult{}, fmt.Errorf("SplitSessionArchive: skip key %q value: %w", key, err)
			}
		}

		// Consume the closing '}'.
		if tok, err := dec.Token(); err != nil {
			return SplitResult{}, fmt.Errorf("SplitSessionArchive: read closing object token: %w", err)
		} else if d, ok := tok.(json.Delim); !ok || d != '}' {
			return SplitResult{}, fmt.Errorf("SplitSessionArchive: expected closing '}', got %v", tok)
		}
		if !foundArray {
			return SplitResult{}, errors.New("SplitSessionArchive: no sessions array found in top-level object")
		}
		return res, nil
	default:
		return SplitResult{}, fmt.Errorf("SplitSessionArchive: unsupported top-level delimiter %q", delim)
	}
}

func splitArrayFromOpen(ctx context.Context, dec *json.Decoder, outputDir string, opts SplitOptions, seen map[string]int, res *SplitResult) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("SplitSessionArchive: decode session element: %w", err)
		}

		session, err := normalizeSession(raw)
		if err != nil {
			return err
		}

		base := sanitizeFilenameComponent(session.SessionID)
		if base == "" {
			base = "session"
		}

		seenCount := seen[base]
		seen[base] = seenCount + 1

		filename := base
		if seenCount > 0 {
			filename = fmt.Sprintf("%s-%d", base, seenCount+1)
		}
		filename += ".session.json"

		outPath := filepath.Join(outputDir, filename)
		if !opts.OverwriteExisting {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("SplitSessionArchive: output file already exists: %s", outPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("SplitSessionArchive: stat output file: %w", err)
			}
		}

		var toWrite []byte
		if opts.Pretty {
			b, err := json.MarshalIndent(session, "", "  ")
			if err != nil {
				return fmt.Errorf("SplitSessionArchive: marshal indent (id=%q): %w", session.SessionID, err)
			}
			toWrite = b
		} else {
			b, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("SplitSessionArchive: marshal (id=%q): %w", session.SessionID, err)
			}
			toWrite = b
		}

		n, err := writeFileAtomic(outputDir, outPath, toWrite, opts.FileMode)
		if err != nil {
			return fmt.Errorf("SplitSessionArchive: write output (id=%q): %w", session.SessionID, err)
		}
		res.SessionsWritten++
		res.BytesWritten += n
	}
	return nil
}

// rawSession tolerates the field aliases seen across export variants.
type rawSession struct {
	SessionID string   `json:"session_id"`
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	StartTime *float64 `json:"start_time"`
	CreatedAt *float64 `json:"created_at"`

	Messages []rawSessionMessage `json:"messages"`
}

type rawSessionMessage struct {
	Author string `json:"author"`
	Sender string `json:"sender"`
	Role   string `json:"role"`

	Text    string `json:"text"`
	Content string `json:"content"`

	Timestamp *float64 `json:"timestamp"`
}

func normalizeSession(raw json.RawMessage) (Session, error) {
	var rs rawSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return Session{}, fmt.Errorf("SplitSessionArchive: unmarshal session: %w", err)
	}

	id := rs.SessionID
	if id == "" {
		id = rs.ID
	}
	if id == "" {
		return Session{}, errors.New("SplitSessionArchive: session element missing session_id/id")
	}

	msgs := make([]Message, 0, len(rs.Messages))
	for _, rm := range rs.Messages {
		m, ok := normalizeMessage(rm)
		if !ok {
			continue
		}
		msgs = append(msgs, m)
	}

	start := rs.StartTime
	if start == nil {
		start = rs.CreatedAt
	}
	if start == nil && len(msgs) > 0 && msgs[0].Timestamp > 0 {
		s := float64(msgs[0].Timestamp) / 1000
		start = &s
	}

	return Session{
		SessionID: id,
		Title:     strings.TrimSpace(rs.Title),
		StartTime: start,
		Messages:  msgs,
	}, nil
}

func normalizeMessage(rm rawSessionMessage) (Message, bool) {
	text := strings.TrimSpace(rm.Text)
	if text == "" {
		text = strings.TrimSpace(rm.Content)
	}
	if text == "" {
		return Message{}, false
	}

	author := strings.ToLower(strings.TrimSpace(rm.Author))
	if author == "" {
		author = strings.ToLower(strings.TrimSpace(rm.Sender))
	}
	if author == "" {
		author = strings.ToLower(strings.TrimSpace(rm.Role))
	}
	switch author {
	case AuthorUser, "patient", "human":
		author = AuthorUser
	default:
		author = AuthorAgent
	}

	return Message{
		Author:    author,
		Text:      text,
		Timestamp: timestampMillis(rm.Timestamp),
	}, true
}

// timestampMillis normalizes export timestamps to unix milliseconds. Values
// below 1e12 are taken as unix seconds (older exports), larger ones as
// milliseconds already.
func timestampMillis(ts *float64) int64 {
	if ts == nil || *ts <= 0 {
		return 0
	}
	if *ts < 1e12 {
		return int64(*ts * 1000)
	}
	return int64(*ts)
}

func sanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	out = strings.Trim(out, "._-")
	out = strings.TrimSpace(out)
	return out
}

func writeFileAtomic(tmpDir, finalPath string, data []byte, mode fs.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(tmpDir, "session_split_*.json")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return 0, err
	}

	n, err := tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if _, err := tmp.Write([]byte("\n")); err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return int64(n), err
	}
	if err := tmp.Close(); err != nil {
		return int64(n), err
	}

	if err := os.Rename(tmpName, finalPath); err != nil {
		return int64(n), err
	}
	return int64(n), nil
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		// Primitive (string/number/bool/null): already fully consumed.
		return nil
	}

	switch d {
	case '{', '[':
		// Consume tokens until the matching closing delimiter.
	default:
		// '}' or ']' shouldn't appear as a value token.
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
