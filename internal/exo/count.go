package exo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// partitionAlphabet defines the alias prefixes the counting fan-out splits
// the tenant into. One partition per character, 36 in total.
const partitionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Partitions returns the alias prefixes counted in parallel.
func Partitions() []string {
	parts := make([]string, 0, len(partitionAlphabet))
	for _, r := range partitionAlphabet {
		parts = append(parts, string(r))
	}
	return parts
}

// PartitionCount is the outcome of counting one alias prefix.
type PartitionCount struct {
	Prefix string
	Count  int64
	Err    error
}

// CountHeader is the partition count report header.
var CountHeader = []string{"Partition", "Count", "Status"}

// Row flattens a partition outcome into a report row.
func (p PartitionCount) Row() []string {
	status := "Success"
	if p.Err != nil {
		status = fmt.Sprintf("Error: %v", p.Err)
	}
	return []string{p.Prefix, strconv.FormatInt(p.Count, 10), status}
}

// CountMailboxes counts the tenant's mailboxes by fanning one counting
// query out per alias partition. Every worker gets its own client from
// newClient so no retry or session state is shared between partitions.
// Failed partitions are reported in the per-partition results and excluded
// from the total; the run itself still completes.
func CountMailboxes(ctx context.Context, newClient func() *Client) (int64, []PartitionCount) {
	parts := Partitions()
	results := make(chan PartitionCount, len(parts))

	var wg sync.WaitGroup
	for _, prefix := range parts {
		wg.Add(1)
		go func(prefix string) {
			defer wg.Done()
			c := newClient()
			n, err := c.countPartition(ctx, prefix)
			results <- PartitionCount{Prefix: prefix, Count: n, Err: err}
		}(prefix)
	}
	wg.Wait()
	close(results)

	counts := make([]PartitionCount, 0, len(parts))
	var total int64
	for r := range results {
		if r.Err == nil {
			total += r.Count
		}
		counts = append(counts, r)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Prefix < counts[j].Prefix })
	return total, counts
}

// countPartition counts the mailboxes whose alias starts with prefix.
func (c *Client) countPartition(ctx context.Context, prefix string) (int64, error) {
	params := map[string]any{
		"Filter":     fmt.Sprintf("Alias -like '%s*'", prefix),
		"ResultSize": "Unlimited",
		"Properties": []string{"Alias"},
	}

	var n int64
	err := invokePages(ctx, c, "Get-EXOMailbox", params, func(items []Mailbox) error {
		n += int64(len(items))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("partition %q: %w", prefix, err)
	}
	return n, nil
}
