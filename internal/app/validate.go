package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	submissionschema "github.com/javiportal/asertiva-monitoring/schema"
)

type validateResult struct {
	Scanned int
	Valid   int
	Invalid int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: asertiva validate <file.json> [file.json ...]")
		return 2
	}
	sort.Strings(files)

	result := validateResult{}
	for _, path := range files {
		result.Scanned++

		raw, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: read failed: %v\n", path, err)
			continue
		}

		if !json.Valid(raw) {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: malformed JSON\n", path)
			continue
		}

		if _, err := submissionschema.ValidateChangeSubmission(json.RawMessage(raw)); err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
			continue
		}

		result.Valid++
		fmt.Printf("VALID %s\n", path)
	}

	fmt.Printf("validate scanned=%d valid=%d invalid=%d\n", result.Scanned, result.Valid, result.Invalid)
	if result.Invalid > 0 {
		return 1
	}
	return 0
}
