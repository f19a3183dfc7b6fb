package stix

import (
	"encoding/json"
	"strings"
	"testing"
)

const sampleBundle = `{
	"type": "bundle",
	"id": "bundle--3b1b0b8a-0000-4000-8000-000000000001",
	"objects": [
		{
			"type": "intrusion-set",
			"id": "intrusion-set--0001",
			"name": "APT29",
			"description": "A Russia-based espionage group.",
			"created": "2017-05-31T21:31:52.748Z",
			"modified": "2021-04-29T14:49:39.188Z",
			"external_references": [
				{"source_name": "mitre-attack", "external_id": "G0016", "url": "https://attack.mitre.org/groups/G0016"}
			]
		},
		{
			"type": "attack-pattern",
			"id": "attack-pattern--0002",
			"name": "Spearphishing Link",
			"x_mitre_platforms": ["Windows", "macOS"],
			"kill_chain_phases": [
				{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}
			],
			"x_mitre_deprecated": true
		},
		{
			"type": "relationship",
			"id": "relationship--0003",
			"relationship_type": "uses",
			"source_ref": "intrusion-set--0001",
			"target_ref": "attack-pattern--0002"
		}
	]
}`

func TestDecode(t *testing.T) {
	b, err := Decode(strings.NewReader(sampleBundle))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(b.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(b.Objects))
	}

	actor := b.Objects[0]
	if actor.Type != TypeIntrusionSet || actor.Name != "APT29" {
		t.Errorf("unexpected first object: %+v", actor)
	}
	if actor.Created.IsZero() {
		t.Error("created timestamp not parsed")
	}

	rel := b.Objects[2]
	if rel.SourceRef != "intrusion-set--0001" || rel.TargetRef != "attack-pattern--0002" {
		t.Errorf("relationship refs not decoded: %+v", rel)
	}
}

func TestDecodeKeepsRawDocument(t *testing.T) {
	b, err := Decode(strings.NewReader(sampleBundle))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	raw := b.Objects[0].Raw
	if len(raw) == 0 {
		t.Fatal("expected raw document to be retained")
	}
	if !json.Valid(raw) {
		t.Errorf("raw document is not valid JSON: %s", raw)
	}
	if !strings.Contains(string(raw), `"intrusion-set"`) {
		t.Errorf("raw document missing original content: %s", raw)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "not json at all"},
		{"wrong type", `{"type": "report", "objects": [{"type": "tool", "id": "tool--1"}]}`},
		{"no objects", `{"type": "bundle", "id": "bundle--1", "objects": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestAttackID(t *testing.T) {
	obj := Object{
		ExternalReferences: []ExternalReference{
			{SourceName: "capec", ExternalID: "CAPEC-98"},
			{SourceName: "mitre-attack", ExternalID: "T1566", URL: "https://attack.mitre.org/techniques/T1566"},
		},
	}
	if got := obj.AttackID(); got != "T1566" {
		t.Errorf("AttackID = %q, want T1566", got)
	}
	if got := (Object{}).AttackID(); got != "" {
		t.Errorf("AttackID on bare object = %q, want empty", got)
	}
}

func TestReferenceURL(t *testing.T) {
	obj := Object{
		ExternalReferences: []ExternalReference{
			{SourceName: "some-blog", URL: "https://example.com/post"},
			{SourceName: "mitre-attack", ExternalID: "T1566", URL: "https://attack.mitre.org/techniques/T1566"},
		},
	}
	if got := obj.ReferenceURL(); got != "https://attack.mitre.org/techniques/T1566" {
		t.Errorf("ReferenceURL = %q, want the mitre-attack URL", got)
	}

	noMitre := Object{
		ExternalReferences: []ExternalReference{
			{SourceName: "some-blog", URL: "https://example.com/post"},
		},
	}
	if got := noMitre.ReferenceURL(); got != "https://example.com/post" {
		t.Errorf("ReferenceURL = %q, want fallback URL", got)
	}
}

func TestIsRevoked(t *testing.T) {
	b, err := Decode(strings.NewReader(sampleBundle))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !b.Objects[1].IsRevoked() {
		t.Error("deprecated attack-pattern should report revoked")
	}
	if b.Objects[0].IsRevoked() {
		t.Error("active intrusion-set should not report revoked")
	}
	if !(Object{Revoked: true}).IsRevoked() {
		t.Error("revoked flag should report revoked")
	}
}
