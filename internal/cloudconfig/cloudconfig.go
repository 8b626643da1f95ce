// Package cloudconfig renders the #cloud-config documents consumed by the
// guest's system-cloudinit service.
package cloudconfig

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Header is the first line every cloud-config document must carry.
const Header = "#cloud-config\n\n"

// Document is a renderable cloud-config document.
type Document interface {
	Marshal() ([]byte, error)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode cloud-config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode cloud-config: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a rendered document back into v. The header is a YAML
// comment, so it needs no special handling.
func Parse(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse cloud-config: %w", err)
	}
	return nil
}
