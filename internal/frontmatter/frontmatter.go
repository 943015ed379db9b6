// Package frontmatter derives document-level metadata from note text: YAML front matter
// properties, tags and wiki-link targets.
package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/synapse/internal/models"
)

// Keys of the map returned by Extract.
const (
	KeyTags       = "tags"
	KeyProperties = "properties"
	KeyOutlinks   = "outlinks"
)

var builtinKeys = map[string]bool{"tags": true, "tag": true, "aliases": true, "cssclass": true}

var (
	inlineTagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/\-]+)`)
	wikiLinkRe  = regexp.MustCompile(`!?\[\[([^\]|#]*)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)
)

// Split separates a leading "---" delimited YAML block from the body. When there is no
// front matter, or it does not parse as a YAML mapping, fields is nil and body is content.
func Split(content string) (fields map[string]interface{}, body string, err error) {
	text := strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return nil, content, nil
	}
	rest := text[strings.Index(text, "\n")+1:]
	end := -1
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimRight(line, "\r\n") == "---" {
			end = offset
			break
		}
		offset += len(line)
	}
	if end < 0 {
		return nil, content, nil
	}
	block := rest[:end]
	body = rest[end:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	if strings.TrimSpace(block) == "" {
		return map[string]interface{}{}, body, nil
	}
	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return nil, content, fmt.Errorf("failed to parse front matter: %w", err)
	}
	return fields, body, nil
}

// Extract returns {tags, properties, outlinks} for content. Malformed front matter is
// treated as absent.
func Extract(content string) models.Properties {
	fields, body, err := Split(content)
	if err != nil {
		body = content
	}

	var tags []string
	switch v := fields["tags"].(type) {
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	case string:
		tags = append(tags, strings.FieldsFunc(v, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })...)
	}
	if s, ok := fields["tag"].(string); ok {
		tags = append(tags, s)
	}
	tags = append(tags, InlineTags(body)...)
	for i, t := range tags {
		tags[i] = strings.TrimPrefix(strings.TrimSpace(t), "#")
	}

	properties := map[string]interface{}{}
	for k, v := range fields {
		if builtinKeys[k] || strings.HasPrefix(k, "css") {
			continue
		}
		properties[k] = v
	}

	return models.Properties{
		KeyTags:       dedupe(tags),
		KeyProperties: properties,
		KeyOutlinks:   Links(body),
	}
}

// InlineTags returns #tags found in body outside fenced code blocks. Purely numeric
// tokens such as "#1" are not tags.
func InlineTags(body string) []string {
	var tags []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range inlineTagRe.FindAllStringSubmatch(line, -1) {
			if strings.IndexFunc(m[1], func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
				tags = append(tags, m[1])
			}
		}
	}
	return tags
}

// Links returns the targets of [[wiki links]] and ![[embeds]] in order of appearance.
func Links(body string) []string {
	var links []string
	for _, m := range wikiLinkRe.FindAllStringSubmatch(body, -1) {
		if target := strings.TrimSpace(m[1]); target != "" {
			links = append(links, target)
		}
	}
	return dedupe(links)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
