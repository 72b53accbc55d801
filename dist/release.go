package dist

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/debindex-dev/debindex/store"
)

const releaseDateFormat = "Mon, 2 Jan 2006 15:04:05 MST"

// releaseEntry is one line of the Release checksum table
type releaseEntry struct {
	path   string
	size   int64
	sha256 string
}

// buildRelease assembles the byte content that gets signed: the header
// block followed by the SHA256 checksum table, no blank line between.
func buildRelease(d *store.Distribution, genTime time.Time, architectures, components []string, entries []releaseEntry) []byte {
	buf := &bytes.Buffer{}

	writeField := func(name, value string) {
		if value != "" {
			fmt.Fprintf(buf, "%s: %s\n", name, value)
		}
	}

	writeField("Origin", d.Origin)
	writeField("Label", d.Label)
	writeField("Suite", d.Suite)
	writeField("Version", d.Version)
	writeField("Codename", d.Codename)
	writeField("Date", genTime.UTC().Format(releaseDateFormat))
	if d.ValidDuration > 0 {
		writeField("Valid-Until", genTime.UTC().Add(d.ValidDuration).Format(releaseDateFormat))
	}
	if !d.Automatic {
		writeField("NotAutomatic", "yes")
		if d.AutomaticUpgrades {
			writeField("ButAutomaticUpgrades", "yes")
		}
	}
	writeField("Acquire-By-Hash", "yes")

	architectures = append([]string(nil), architectures...)
	sort.Strings(architectures)
	writeField("Architectures", strings.Join(architectures, " "))

	components = append([]string(nil), components...)
	sort.Strings(components)
	writeField("Components", strings.Join(components, " "))

	writeField("Description", d.Description)

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	buf.WriteString("SHA256:\n")
	for _, entry := range entries {
		fmt.Fprintf(buf, " %s %8d %s\n", entry.sha256, entry.size, entry.path)
	}

	return buf.Bytes()
}
