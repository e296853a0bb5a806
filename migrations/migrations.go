// Package migrations embeds the PostgreSQL schema and validates the migration
// set before it is handed to golang-migrate.
//
// Files follow the 001_name.up.sql / 001_name.down.sql convention. Every up
// migration needs a down migration and sequence numbers start at 001 with no gaps.
package migrations

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

var (
	// ErrNoMigrations is returned when the source holds no migration files.
	ErrNoMigrations = errors.New("no migration files found")

	// ErrInvalidFilename is returned for a .sql file that does not follow the naming convention.
	ErrInvalidFilename = errors.New("invalid migration filename")

	// ErrUnpaired is returned when an up or down migration has no counterpart.
	ErrUnpaired = errors.New("unpaired migration")

	// ErrSequenceGap is returned when sequence numbers do not start at 001 or skip a number.
	ErrSequenceGap = errors.New("gap in migration sequence")

	// ErrChecksumMismatch is returned when a file changed after it was first validated.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

type (
	// Info is a parsed migration filename.
	Info struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}

	// Set is a validated view over a migration source.
	Set struct {
		fs        fs.FS
		checksums map[string]string
	}
)

// New returns a Set over filesystem. Pass nil for the embedded schema.
func New(filesystem fs.FS) *Set {
	if filesystem == nil {
		filesystem = embedded
	}

	return &Set{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS returns the migration source for golang-migrate's iofs driver.
func (s *Set) FS() fs.FS {
	return s.fs
}

// Files returns the .sql files in lexicographic order, which is apply order.
// Files not matching the naming convention are reported by Validate.
func (s *Set) Files() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		files = append(files, entry.Name())
	}

	slices.Sort(files)

	return files, nil
}

// Validate checks naming, up/down pairing, sequence continuity and, from the
// second call on, that no file changed since the first call.
func (s *Set) Validate() error {
	files, err := s.Files()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	infos := make([]Info, 0, len(files))

	for _, file := range files {
		info, err := Parse(file)
		if err != nil {
			return err
		}

		infos = append(infos, info)
	}

	if err := validatePairing(infos); err != nil {
		return err
	}

	if err := validateSequence(infos); err != nil {
		return err
	}

	return s.validateChecksums(files)
}

// Latest returns the highest sequence number in the set, or 0 when it cannot be read.
func (s *Set) Latest() int {
	files, err := s.Files()
	if err != nil {
		return 0
	}

	latest := 0

	for _, file := range files {
		if info, err := Parse(file); err == nil && info.Sequence > latest {
			latest = info.Sequence
		}
	}

	return latest
}

// Parse splits a migration filename into its parts.
func Parse(filename string) (Info, error) {
	parts := filenamePattern.FindStringSubmatch(filename)
	if len(parts) != 4 {
		return Info{}, fmt.Errorf("%w: %s (expected 001_name.up.sql or 001_name.down.sql)", ErrInvalidFilename, filename)
	}

	sequence, err := strconv.Atoi(parts[1])
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrInvalidFilename, filename, err)
	}

	return Info{
		Sequence:  sequence,
		Name:      parts[2],
		Direction: parts[3],
		Filename:  filename,
	}, nil
}

func validatePairing(infos []Info) error {
	directions := make(map[string]map[string]bool)

	for _, info := range infos {
		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][info.Direction] = true
	}

	for key, dirs := range directions {
		if !dirs["up"] {
			return fmt.Errorf("%w: missing up migration for %s", ErrUnpaired, key)
		}

		if !dirs["down"] {
			return fmt.Errorf("%w: missing down migration for %s", ErrUnpaired, key)
		}
	}

	return nil
}

func validateSequence(infos []Info) error {
	var sequences []int

	for _, info := range infos {
		if !slices.Contains(sequences, info.Sequence) {
			sequences = append(sequences, info.Sequence)
		}
	}

	slices.Sort(sequences)

	if sequences[0] != 1 {
		return fmt.Errorf("%w: sequence should start with 001, found %03d", ErrSequenceGap, sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("%w: expected %03d, found %03d", ErrSequenceGap, sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}

func (s *Set) validateChecksums(files []string) error {
	for _, file := range files {
		content, err := fs.ReadFile(s.fs, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		sum := fmt.Sprintf("%x", sha256.Sum256(content))

		if stored, ok := s.checksums[file]; ok && stored != sum {
			return fmt.Errorf("%w: %s has been modified", ErrChecksumMismatch, file)
		}

		s.checksums[file] = sum
	}

	return nil
}
