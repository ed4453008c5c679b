package ledger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteBackup writes the human-readable dump of every community:
//
//	Community ID: 123
//	Member ID: 42, Balance: 10, Lifetime: 30, Last Claimed: 2025-03-10, Streak: 2
//
// Communities and members are written in ascending ID order.
func WriteBackup(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	for _, c := range doc.Communities() {
		fmt.Fprintf(bw, "Community ID: %s\n", c)
		for _, e := range doc.Entries(c) {
			last := ""
			if e.Record.LastClaimed != nil {
				last = e.Record.LastClaimed.String()
			}
			fmt.Fprintf(bw, "Member ID: %s, Balance: %d, Lifetime: %d, Last Claimed: %s, Streak: %d\n",
				e.Member, e.Record.Balance, e.Record.LifetimeEarned, last, e.Record.Streak)
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteBackupFile replaces path with a fresh dump of doc.
func WriteBackupFile(path string, doc Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteBackup(tmp, doc); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
