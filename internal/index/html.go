package index

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var ErrOutputAlreadyExists = errors.New("index output directory already exists")

var nameSeparators = regexp.MustCompile(`[-_.]+`)

const pageHead = "<!DOCTYPE html>\n<html>\n<head>\n" +
	"\t<meta name=\"pypi:repository-version\" content=\"1.0\">\n" +
	"\t<title>%s</title>\n\t<meta charset=\"UTF-8\" />\n</head>\n<body>\n\t"

const pageTail = "\n</body>\n</html>\n"

// NormalizeProjectName collapses runs of '-', '_' and '.' into '-' and
// lower-cases the result.
func NormalizeProjectName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

// Write renders a static simple repository into output: index.html listing
// the packages and <package>/index.html listing their wheels. A non-empty
// output is replaced only when overwrite is set.
func Write(output string, packages map[string][]WheelRecord, overwrite bool) error {
	used, err := checkOutput(output, overwrite)
	if err != nil {
		return err
	}
	if used {
		if err := os.RemoveAll(output); err != nil {
			return fmt.Errorf("removing %s: %w", output, err)
		}
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}

	normalized := make(map[string][]WheelRecord, len(packages))
	names := make([]string, 0, len(packages))
	raw := make([]string, 0, len(packages))
	for name := range packages {
		raw = append(raw, name)
	}
	sort.Strings(raw)
	for _, name := range raw {
		n := NormalizeProjectName(name)
		if _, seen := normalized[n]; !seen {
			names = append(names, n)
		}
		normalized[n] = append(normalized[n], packages[name]...)
	}
	sort.Strings(names)

	links := make([]string, 0, len(names))
	for _, name := range names {
		n := html.EscapeString(name)
		links = append(links, fmt.Sprintf(`<a href="%s/">%s</a>`, n, n))
	}
	if err := writePage(filepath.Join(output, "index.html"), "Simple Index", "", links, "\n\t"); err != nil {
		return err
	}

	for _, name := range names {
		dir := filepath.Join(output, name)
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		wheels := normalized[name]
		links := make([]string, 0, len(wheels))
		for _, w := range wheels {
			links = append(links, wheelLink(w))
		}
		title := "Links for " + html.EscapeString(name)
		heading := "<h1>" + title + "</h1>\n\t"
		if err := writePage(filepath.Join(dir, "index.html"), title, heading, links, "<br />\n\t"); err != nil {
			return err
		}
	}
	return nil
}

// checkOutput reports whether output holds files, failing with
// ErrOutputAlreadyExists when it does and overwrite is not set.
func checkOutput(output string, overwrite bool) (bool, error) {
	entries, err := os.ReadDir(output)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking %s: %w", output, err)
	case len(entries) == 0:
		return false, nil
	case !overwrite:
		return true, fmt.Errorf("%w: %s", ErrOutputAlreadyExists, output)
	}
	return true, nil
}

func wheelLink(w WheelRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<a href="%s#sha256=%s"`, html.EscapeString(w.URL), w.SHA256)
	if w.RequiresPython != "" {
		fmt.Fprintf(&b, ` data-requires-python="%s"`, html.EscapeString(w.RequiresPython))
	}
	if w.MetadataSHA256 != "" {
		fmt.Fprintf(&b, ` data-dist-info-metadata="sha256=%s" data-core-metadata="sha256=%s"`, w.MetadataSHA256, w.MetadataSHA256)
	}
	fmt.Fprintf(&b, ">%s</a>", html.EscapeString(w.Name))
	return b.String()
}

func writePage(file, title, heading string, links []string, sep string) error {
	var b strings.Builder
	fmt.Fprintf(&b, pageHead, title)
	b.WriteString(heading)
	b.WriteString(strings.Join(links, sep))
	b.WriteString(pageTail)
	if err := os.WriteFile(file, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}
