package publish

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

const policyVersion = "2012-10-17"

// Statement is one bucket policy statement.
type Statement struct {
	Sid       string `json:"Sid"`
	Effect    string `json:"Effect"`
	Principal string `json:"Principal"`
	Action    string `json:"Action"`
	Resource  string `json:"Resource"`
}

// PublicReadSid is the statement id used for the public read grant on bucket/prefix.
func PublicReadSid(bucket, prefix string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + strings.Trim(prefix, "/")))
	return "PublicRead" + hex.EncodeToString(sum[:6])
}

// PublicReadStatement grants anonymous GetObject on every key under prefix.
func PublicReadStatement(bucket, prefix string) Statement {
	resource := "arn:aws:s3:::" + bucket + "/*"
	if p := strings.Trim(prefix, "/"); p != "" {
		resource = "arn:aws:s3:::" + bucket + "/" + p + "/*"
	}
	return Statement{
		Sid:       PublicReadSid(bucket, prefix),
		Effect:    "Allow",
		Principal: "*",
		Action:    "s3:GetObject",
		Resource:  resource,
	}
}

// MergePublicRead adds the public read statement to existing, replacing any
// statement with the same Sid and leaving all others untouched. It returns the
// new document and whether it differs from existing.
func MergePublicRead(existing, bucket, prefix string) (string, bool, error) {
	want := PublicReadStatement(bucket, prefix)
	wantRaw, err := json.Marshal(want)
	if err != nil {
		return "", false, err
	}

	doc := map[string]json.RawMessage{}
	var statements []json.RawMessage
	if strings.TrimSpace(existing) != "" {
		if err := json.Unmarshal([]byte(existing), &doc); err != nil {
			return "", false, fmt.Errorf("parse bucket policy: %w", err)
		}
		statements, err = decodeStatements(doc["Statement"])
		if err != nil {
			return "", false, err
		}
	}

	merged := make([]json.RawMessage, 0, len(statements)+1)
	found, changed := false, false
	for _, raw := range statements {
		var peek struct {
			Sid string `json:"Sid"`
		}
		if err := json.Unmarshal(raw, &peek); err != nil {
			return "", false, fmt.Errorf("parse policy statement: %w", err)
		}
		switch {
		case peek.Sid != want.Sid:
			merged = append(merged, raw)
		case found:
			changed = true
		case sameStatement(raw, wantRaw):
			found = true
			merged = append(merged, raw)
		default:
			found, changed = true, true
			merged = append(merged, wantRaw)
		}
	}
	if !found {
		merged = append(merged, wantRaw)
		changed = true
	}
	if !changed {
		return existing, false, nil
	}

	compacted := make([]json.RawMessage, 0, len(merged))
	for _, raw := range merged {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false, err
		}
		compacted = append(compacted, buf.Bytes())
	}

	if _, ok := doc["Version"]; !ok {
		doc["Version"] = json.RawMessage(`"` + policyVersion + `"`)
	}
	stmts, err := json.Marshal(compacted)
	if err != nil {
		return "", false, err
	}
	doc["Statement"] = stmts

	out, err := json.Marshal(doc)
	if err != nil {
		return "", false, err
	}
	return string(out), true, nil
}

func decodeStatements(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		return []json.RawMessage{raw}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse policy statements: %w", err)
	}
	return list, nil
}

func sameStatement(a, b json.RawMessage) bool {
	var left, right map[string]any
	if json.Unmarshal(a, &left) != nil || json.Unmarshal(b, &right) != nil {
		return false
	}
	return reflect.DeepEqual(left, right)
}
