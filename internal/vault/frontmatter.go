package vault

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(raw []byte) (header []byte, body string, err error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return nil, "", fmt.Errorf("missing frontmatter header")
	}

	rest := text[len(frontmatterDelimiter)+1:]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return nil, "", fmt.Errorf("unterminated frontmatter header")
	}

	header = []byte(rest[:idx+1])
	body = rest[idx+1+len(frontmatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")
	return header, body, nil
}

// decodeDocument parses a vault file into typed frontmatter plus body.
func decodeDocument(raw []byte, frontmatter any) (body string, err error) {
	header, body, err := splitFrontmatter(raw)
	if err != nil {
		return "", err
	}
	if err := yaml.Unmarshal(header, frontmatter); err != nil {
		return "", fmt.Errorf("decode frontmatter: %w", err)
	}
	return body, nil
}

// encodeDocument renders frontmatter plus body back into file bytes.
func encodeDocument(frontmatter any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(frontmatter); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close frontmatter encoder: %w", err)
	}

	buf.WriteString(frontmatterDelimiter + "\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
	}
	return buf.Bytes(), nil
}
