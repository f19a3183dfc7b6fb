// Package stix decodes the subset of STIX 2.x bundle content published by
// the MITRE ATT&CK feeds. Only the fields the explorer consumes are modeled;
// everything else in the feed is ignored on decode.
package stix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// STIX object types the explorer cares about.
const (
	TypeBundle        = "bundle"
	TypeIntrusionSet  = "intrusion-set"
	TypeTool          = "tool"
	TypeMalware       = "malware"
	TypeAttackPattern = "attack-pattern"
	TypeRelationship  = "relationship"
)

// Bundle is a STIX 2.x bundle document.
type Bundle struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Objects []Object `json:"objects"`
}

// Object is a single STIX domain or relationship object. Fields that only
// apply to some object types are zero for the rest.
type Object struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	Modified    time.Time `json:"modified,omitempty"`

	Revoked    bool `json:"revoked,omitempty"`
	Deprecated bool `json:"x_mitre_deprecated,omitempty"`

	Platforms          []string            `json:"x_mitre_platforms,omitempty"`
	KillChainPhases    []KillChainPhase    `json:"kill_chain_phases,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`

	// Relationship fields.
	RelationshipType string `json:"relationship_type,omitempty"`
	SourceRef        string `json:"source_ref,omitempty"`
	TargetRef        string `json:"target_ref,omitempty"`

	// Raw holds the original object document as decoded, including
	// fields this struct does not model. The snapshot cache persists
	// it so nothing from the feed is lost.
	Raw json.RawMessage `json:"-"`
}

// objectAlias prevents UnmarshalJSON from recursing into itself.
type objectAlias Object

// UnmarshalJSON decodes the object and retains the original document.
func (o *Object) UnmarshalJSON(data []byte) error {
	var a objectAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = Object(a)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// KillChainPhase places a technique in a kill chain stage.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// ExternalReference links an object to outside material. For ATT&CK objects
// the mitre-attack reference carries the public identifier (G0007, T1059).
type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Decode reads a STIX bundle from r. The document must be a bundle with at
// least one object.
func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Type != TypeBundle {
		return nil, fmt.Errorf("unexpected document type %q", b.Type)
	}
	if len(b.Objects) == 0 {
		return nil, errors.New("bundle has no objects")
	}
	return &b, nil
}

// AttackID returns the object's public ATT&CK identifier from its
// mitre-attack external reference, or "" when the object has none.
func (o Object) AttackID() string {
	for _, ref := range o.ExternalReferences {
		switch ref.SourceName {
		case "mitre-attack", "mitre-mobile-attack", "mitre-ics-attack":
			return ref.ExternalID
		}
	}
	return ""
}

// ReferenceURL returns the URL of the first external reference that has one,
// preferring the mitre-attack reference.
func (o Object) ReferenceURL() string {
	for _, ref := range o.ExternalReferences {
		switch ref.SourceName {
		case "mitre-attack", "mitre-mobile-attack", "mitre-ics-attack":
			if ref.URL != "" {
				return ref.URL
			}
		}
	}
	for _, ref := range o.ExternalReferences {
		if ref.URL != "" {
			return ref.URL
		}
	}
	return ""
}

// IsRevoked reports whether the object was revoked or deprecated upstream.
func (o Object) IsRevoked() bool {
	return o.Revoked || o.Deprecated
}
