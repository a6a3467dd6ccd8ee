package dallebot

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/opencontainers/go-digest"
)

const journalFileName = "dalle_bot_logs.csv"
const saltFileName = ".salt"

var journalColumns = []string{"group", "timestamp", "prompt", "size", "hashed_user"}

type journalEntry struct {
	Group     bool
	Timestamp time.Time
	Prompt    string
	Size      int

	HashedUser string
}

// A Journal is the persistent, anonymised log of all generation requests.
// It lives inside the directory mounted on the deployment's volume, so request history and with it the rate limits survive container replacements.
type Journal struct {
	mu sync.Mutex

	path string
	salt string

	entries []journalEntry
}

// OpenJournal opens the journal inside the passed directory, creating the directory, the salt and an empty journal as needed.
// A journal file that can't be parsed is treated as absent
func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("couldn't create journal directory %s - %v", dir, err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFileName))
	if err != nil {
		return nil, err
	}

	journal := &Journal{
		path: filepath.Join(dir, journalFileName),
		salt: salt,
	}

	if entries, err := readJournalFile(journal.path); err == nil {
		journal.entries = entries
	}

	return journal, nil
}

// loadOrCreateSalt returns the hashing salt stored at the passed path, generating and persisting a fresh one if none exists yet.
// The salt has to be stable across restarts, as the hashed user ids keyed by it carry the rate limit state
func loadOrCreateSalt(path string) (string, error) {
	if salt, err := os.ReadFile(path); err == nil && len(salt) > 0 {
		return string(salt), nil
	}

	salt := uniuri.NewLen(32)
	if err := os.WriteFile(path, []byte(salt), 0600); err != nil {
		return "", fmt.Errorf("couldn't persist journal salt at %s - %v", path, err)
	}
	return salt, nil
}

func readJournalFile(path string) ([]journalEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	var entries []journalEntry
	for i, record := range records {
		// Skip the header
		if i == 0 {
			continue
		}
		if len(record) != len(journalColumns) {
			return nil, fmt.Errorf("journal row %d has %d columns, expected %d", i, len(record), len(journalColumns))
		}

		group, err := strconv.ParseBool(record[0])
		if err != nil {
			return nil, err
		}
		timestamp, err := time.Parse(time.RFC3339, record[1])
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(record[3])
		if err != nil {
			return nil, err
		}

		entries = append(entries, journalEntry{
			Group:     group,
			Timestamp: timestamp,
			Prompt:    record[2],
			Size:      size,

			HashedUser: record[4],
		})
	}

	return entries, nil
}

// HashUser returns the salted, anonymised identifier of the passed Telegram user id
func (j *Journal) HashUser(userID int64) string {
	return digest.FromString(j.salt + strconv.FormatInt(userID, 10)).Encoded()
}

// Record appends a generation request to the journal and flushes it to disk
func (j *Journal) Record(group bool, timestamp time.Time, prompt string, size int, hashedUser string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("couldn't open journal at %s - %v", j.path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if stat.Size() == 0 {
		// A row write failing after this leaves a header-only file, which loads as an empty journal
		if err := writer.Write(journalColumns); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		strconv.FormatBool(group),
		timestamp.Format(time.RFC3339),
		prompt,
		strconv.Itoa(size),
		hashedUser,
	}); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	j.entries = append(j.entries, journalEntry{
		Group:     group,
		Timestamp: timestamp,
		Prompt:    prompt,
		Size:      size,

		HashedUser: hashedUser,
	})

	return nil
}

// LastRequest returns the timestamp of the passed user's newest journal entry
func (j *Journal) LastRequest(hashedUser string) (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var last time.Time
	found := false
	for _, entry := range j.entries {
		if entry.HashedUser == hashedUser && entry.Timestamp.After(last) {
			last = entry.Timestamp
			found = true
		}
	}

	return last, found
}

// RequestsSince returns how many journal entries the passed user has at or after the passed time
func (j *Journal) RequestsSince(hashedUser string, since time.Time) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := 0
	for _, entry := range j.entries {
		if entry.HashedUser == hashedUser && !entry.Timestamp.Before(since) {
			count++
		}
	}

	return count
}

// Stats returns the total number of requests, the number of requests since the passed time and the number of unique users
func (j *Journal) Stats(since time.Time) (total, recent, uniqueUsers int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	users := make(map[string]bool)
	for _, entry := range j.entries {
		total++
		if !entry.Timestamp.Before(since) {
			recent++
		}
		users[entry.HashedUser] = true
	}

	return total, recent, len(users)
}
