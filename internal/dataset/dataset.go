// Package dataset prepares held-out evaluation sets for the generation
// stage: loading the supported JSONL corpora, length-ordering, sharding
// across generation workers, and batch splitting.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one evaluation example in the instruction/input/output form the
// generation program consumes.
type Record struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// aspectRecord is the raw form of the aspect-summarization corpora
// (CovidET, NEWTS, MA_News): an article, the aspect phrases, and the
// reference abstract.
type aspectRecord struct {
	Article  string `json:"article"`
	Phrases  string `json:"phrases"`
	Abstract string `json:"abstract"`
}

// aspectCorpora are dataset-name markers for files that need the aspect
// instruction wrapper. Matching is case-insensitive on the file path.
var aspectCorpora = []string{"covidet", "newts", "ma_news"}

// Load reads a JSONL evaluation set. Files from the aspect-summarization
// corpora are rewritten into instruction records; all other files are
// expected to already hold instruction/input/output objects.
func Load(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	aspect := isAspectCorpus(path)

	var records []*Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if aspect {
			var raw aspectRecord
			if err := json.Unmarshal([]byte(text), &raw); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			records = append(records, &Record{
				Instruction: fmt.Sprintf("Write a summary from %s perspective", raw.Phrases),
				Input:       raw.Article,
				Output:      raw.Abstract,
			})
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return records, nil
}

// isAspectCorpus reports whether the file belongs to one of the
// aspect-summarization corpora, judged by its path.
func isAspectCorpus(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, marker := range aspectCorpora {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// SortByInputLength orders records by the word count of their input, which
// keeps per-batch padding small during generation. The sort is stable so
// equal-length records keep their file order.
func SortByInputLength(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return len(strings.Fields(records[i].Input)) < len(strings.Fields(records[j].Input))
	})
}

// Shard returns the contiguous slice of records assigned to the given rank
// out of worldSize workers. Every record is assigned to exactly one rank;
// the final rank may receive fewer records.
func Shard(records []*Record, worldSize, rank int) []*Record {
	if worldSize <= 0 {
		panic("worldSize must be positive")
	}
	if rank < 0 || rank >= worldSize {
		panic("rank out of range")
	}
	per := (len(records) + worldSize - 1) / worldSize
	lo := rank * per
	if lo >= len(records) {
		return nil
	}
	hi := lo + per
	if hi > len(records) {
		hi = len(records)
	}
	return records[lo:hi]
}

// SplitBatches chops records into batches of at most size elements,
// preserving order.
func SplitBatches(records []*Record, size int) [][]*Record {
	if size <= 0 {
		panic("batch size must be positive")
	}
	var batches [][]*Record
	for lo := 0; lo < len(records); lo += size {
		hi := lo + size
		if hi > len(records) {
			hi = len(records)
		}
		batches = append(batches, records[lo:hi])
	}
	return batches
}

// WriteJSONL persists records in the JSONL form the generation program
// reads.
func WriteJSONL(path string, records []*Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}
