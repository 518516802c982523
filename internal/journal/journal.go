// Package journal persists publish state transitions in a per-workspace BoltDB file.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/temirov/gitpublish/internal/publish"
)

const (
	entriesBucketConstant              = "entries"
	latestBucketConstant               = "latest"
	latestKeySeparatorConstant         = "\x00"
	directoryPermissionsConstant       = 0o755
	filePermissionsConstant            = 0o600
	openTimeoutConstant                = time.Second
	missingPathErrorConstant           = "journal path is required"
	missingBucketErrorTemplateConstant = "journal bucket %s missing"
	openErrorTemplateConstant          = "unable to open journal %s: %w"
	encodeErrorTemplateConstant        = "unable to encode journal entry: %w"
	decodeErrorTemplateConstant        = "unable to decode journal entry: %w"
)

// Entry is a persisted state transition.
type Entry struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Line       string    `json:"line,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Message    string    `json:"message,omitempty"`
	Commits    int       `json:"commits"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Option customizes a Journal.
type Option func(*Journal)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(journal *Journal) {
		if clock != nil {
			journal.clock = clock
		}
	}
}

// WithIdentifierGenerator overrides the entry ID source.
func WithIdentifierGenerator(generator func() string) Option {
	return func(journal *Journal) {
		if generator != nil {
			journal.newIdentifier = generator
		}
	}
}

// Journal stores transitions in insertion order and keeps the latest entry per endpoint/line pair.
type Journal struct {
	database      *bolt.DB
	clock         func() time.Time
	newIdentifier func() string
	closeOnce     sync.Once
	closeError    error
}

// Open opens (or creates) the journal file at path.
func Open(path string, options ...Option) (*Journal, error) {
	if len(path) == 0 {
		return nil, errors.New(missingPathErrorConstant)
	}

	cleaned := filepath.Clean(path)
	if directory := filepath.Dir(cleaned); directory != "." {
		if mkdirError := os.MkdirAll(directory, directoryPermissionsConstant); mkdirError != nil {
			return nil, fmt.Errorf(openErrorTemplateConstant, cleaned, mkdirError)
		}
	}

	database, openError := bolt.Open(cleaned, filePermissionsConstant, &bolt.Options{Timeout: openTimeoutConstant})
	if openError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, cleaned, openError)
	}

	if bucketError := database.Update(func(transaction *bolt.Tx) error {
		for _, bucket := range []string{entriesBucketConstant, latestBucketConstant} {
			if _, createError := transaction.CreateBucketIfNotExists([]byte(bucket)); createError != nil {
				return createError
			}
		}
		return nil
	}); bucketError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(openErrorTemplateConstant, cleaned, bucketError)
	}

	journal := &Journal{database: database, clock: time.Now, newIdentifier: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(journal)
		}
	}
	return journal, nil
}

// RecordTransition appends transition to the journal.
func (journal *Journal) RecordTransition(executionContext context.Context, transition publish.Transition) error {
	entry := Entry{
		ID:         journal.newIdentifier(),
		Operation:  string(transition.Operation),
		Endpoint:   string(transition.Endpoint),
		Line:       string(transition.Line),
		From:       string(transition.From),
		To:         string(transition.To),
		Message:    transition.Message,
		Commits:    transition.Commits,
		RecordedAt: journal.clock().UTC(),
	}
	payload, encodeError := json.Marshal(entry)
	if encodeError != nil {
		return fmt.Errorf(encodeErrorTemplateConstant, encodeError)
	}

	return journal.database.Update(func(transaction *bolt.Tx) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}

		entries, bucketError := bucket(transaction, entriesBucketConstant)
		if bucketError != nil {
			return bucketError
		}
		sequence, sequenceError := entries.NextSequence()
		if sequenceError != nil {
			return sequenceError
		}
		if putError := entries.Put(sequenceKey(sequence), payload); putError != nil {
			return putError
		}

		latest, latestBucketError := bucket(transaction, latestBucketConstant)
		if latestBucketError != nil {
			return latestBucketError
		}
		return latest.Put(latestKey(entry), payload)
	})
}

// Recent returns up to limit entries, oldest first. A non-positive limit returns every entry.
func (journal *Journal) Recent(executionContext context.Context, limit int) ([]Entry, error) {
	entries := make([]Entry, 0)
	viewError := journal.database.View(func(transaction *bolt.Tx) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		entriesBucket, bucketError := bucket(transaction, entriesBucketConstant)
		if bucketError != nil {
			return bucketError
		}

		cursor := entriesBucket.Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			entry, decodeError := decodeEntry(value)
			if decodeError != nil {
				return decodeError
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if viewError != nil {
		return nil, viewError
	}

	for left, right := 0, len(entries)-1; left < right; left, right = left+1, right-1 {
		entries[left], entries[right] = entries[right], entries[left]
	}
	return entries, nil
}

// Latest returns the most recent entry per endpoint/line pair, sorted by endpoint then line.
func (journal *Journal) Latest(executionContext context.Context) ([]Entry, error) {
	entries := make([]Entry, 0)
	viewError := journal.database.View(func(transaction *bolt.Tx) error {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		latest, bucketError := bucket(transaction, latestBucketConstant)
		if bucketError != nil {
			return bucketError
		}
		return latest.ForEach(func(_ []byte, value []byte) error {
			entry, decodeError := decodeEntry(value)
			if decodeError != nil {
				return decodeError
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if viewError != nil {
		return nil, viewError
	}

	sort.SliceStable(entries, func(left int, right int) bool {
		if entries[left].Endpoint != entries[right].Endpoint {
			return entries[left].Endpoint < entries[right].Endpoint
		}
		return entries[left].Line < entries[right].Line
	})
	return entries, nil
}

// Close releases the database file lock.
func (journal *Journal) Close() error {
	journal.closeOnce.Do(func() {
		journal.closeError = journal.database.Close()
	})
	return journal.closeError
}

func bucket(transaction *bolt.Tx, name string) (*bolt.Bucket, error) {
	found := transaction.Bucket([]byte(name))
	if found == nil {
		return nil, fmt.Errorf(missingBucketErrorTemplateConstant, name)
	}
	return found, nil
}

func sequenceKey(sequence uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, sequence)
	return key
}

func latestKey(entry Entry) []byte {
	return []byte(entry.Endpoint + latestKeySeparatorConstant + entry.Line)
}

func decodeEntry(payload []byte) (Entry, error) {
	var entry Entry
	if decodeError := json.Unmarshal(payload, &entry); decodeError != nil {
		return Entry{}, fmt.Errorf(decodeErrorTemplateConstant, decodeError)
	}
	return entry, nil
}
