package gateways

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// mavenMetadata is the subset of maven-metadata.xml the client reads
type mavenMetadata struct {
	XMLName    xml.Name `xml:"metadata"`
	GroupID    string   `xml:"groupId"`
	ArtifactID string   `xml:"artifactId"`
	Versioning struct {
		Latest   string   `xml:"latest"`
		Release  string   `xml:"release"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

// parseMavenMetadata returns the listed versions in document order
func parseMavenMetadata(data []byte) ([]string, error) {
	var md mavenMetadata
	if err := xml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse maven metadata: %w", err)
	}

	versions := make([]string, 0, len(md.Versioning.Versions))
	for _, v := range md.Versioning.Versions {
		if v = strings.TrimSpace(v); v != "" {
			versions = append(versions, v)
		}
	}
	return versions, nil
}
