package evaluator

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultKeywords are the technical terms the offline scorer rewards.
var DefaultKeywords = []string{
	"api", "database", "cache", "index", "thread", "concurrency",
	"scalability", "latency", "throughput", "http", "sql", "queue",
	"microservice", "algorithm", "complexity", "transaction", "load balancer",
	"kubernetes", "docker", "replication", "sharding", "consistency",
	"mutex", "deadlock", "encryption", "authentication", "monitoring",
	"testing", "deployment", "architecture",
}

// LoadKeywords reads one keyword per line from path. Blank lines and lines
// starting with '#' are skipped.
func LoadKeywords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only keyword list.
			_ = cerr
		}
	}()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("keyword list is empty")
	}
	return words, nil
}

type keyword struct {
	word string
	re   *regexp.Regexp
}

func compileKeywords(words []string) []keyword {
	seen := make(map[string]struct{}, len(words))
	out := make([]keyword, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		pattern := `\b` + strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`) + `s?\b`
		out = append(out, keyword{word: w, re: regexp.MustCompile(`(?i)` + pattern)})
	}
	return out
}
