package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"swapscope/internal/portfolio"
)

// JsonlStorage appends swap and PnL records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// record is one JSONL line. Kind discriminates swap and pnl_detail entries
// sharing the file.
type record struct {
	Kind      string            `json:"kind"`
	Chain     string            `json:"chain"`
	Wallet    string            `json:"wallet"`
	WrittenAt time.Time         `json:"written_at"`
	Swap      *portfolio.Swap   `json:"swap,omitempty"`
	Detail    *portfolio.Detail `json:"detail,omitempty"`
}

// PutSwaps appends a batch of swaps as JSON lines.
func (s *JsonlStorage) PutSwaps(_ context.Context, chain, wallet string, swaps []portfolio.Swap) error {
	records := make([]record, len(swaps))
	now := time.Now().UTC()
	for i := range swaps {
		records[i] = record{Kind: "swap", Chain: chain, Wallet: wallet, WrittenAt: now, Swap: &swaps[i]}
	}
	return s.append(records)
}

// PutPnlDetails appends a batch of PnL details as JSON lines.
func (s *JsonlStorage) PutPnlDetails(_ context.Context, chain, wallet string, details []portfolio.Detail) error {
	records := make([]record, len(details))
	now := time.Now().UTC()
	for i := range details {
		records[i] = record{Kind: "pnl_detail", Chain: chain, Wallet: wallet, WrittenAt: now, Detail: &details[i]}
	}
	return s.append(records)
}

func (s *JsonlStorage) append(records []record) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range records {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
